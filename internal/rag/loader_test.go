package rag

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_asthma.txt"), []byte("Asthma narrows the airways."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_gerd.html"), []byte(`<html><head><style>p{}</style></head>
<body><nav>menu</nav><h1>GERD</h1><p>Acid   reflux causes
heartburn.</p><script>x()</script></body></html>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89, 0x50}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.md"), []byte("   \n"), 0o644))

	docs, err := LoadDocuments(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a_gerd.html", docs[0].Source)
	assert.Equal(t, "GERD\n\nAcid reflux causes heartburn.", docs[0].Text)
	assert.Equal(t, "Asthma narrows the airways.", docs[1].Text)
}

func TestLoadDocumentsMissingDir(t *testing.T) {
	_, err := LoadDocuments(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

// onePagePDF builds a single-page PDF whose content stream shows text.
func onePagePDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func TestLoadDocumentsPDF(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dengue.pdf"), onePagePDF("Dengue causes high fever."), 0o644))

	docs, err := LoadDocuments(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "dengue.pdf", docs[0].Source)
	assert.Contains(t, docs[0].Text, "Dengue causes high fever.")
}

func TestLoadDocumentsCorruptPDF(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("not a pdf"), 0o644))

	_, err := LoadDocuments(dir)
	assert.ErrorContains(t, err, "broken.pdf")
}
