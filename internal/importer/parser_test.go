package importer

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRowReaderHeaderDerivedFields(t *testing.T) {
	in := "title,description,price,count\nWidget,Nice,9.99,5\nGadget,,15,0\n"
	rr := NewRowReader(strings.NewReader(in))

	require.True(t, rr.Next())
	require.Equal(t, Row{"title": "Widget", "description": "Nice", "price": "9.99", "count": "5"}, rr.Row())

	require.True(t, rr.Next())
	require.Equal(t, "Gadget", rr.Row()["title"])
	require.Equal(t, "", rr.Row()["description"])

	require.False(t, rr.Next())
	require.NoError(t, rr.Err())
	require.Equal(t, 2, rr.Count())
}

func TestRowReaderEmptyInput(t *testing.T) {
	rr := NewRowReader(strings.NewReader(""))
	require.False(t, rr.Next())
	require.NoError(t, rr.Err())
	require.Equal(t, 0, rr.Count())
}

func TestRowReaderHeaderOnly(t *testing.T) {
	rr := NewRowReader(strings.NewReader("title,price\n"))
	require.False(t, rr.Next())
	require.NoError(t, rr.Err())
}

func TestRowReaderMalformedRowTerminatesWithError(t *testing.T) {
	in := "title,price\nok,1\n\"unterminated,2\n"
	rr := NewRowReader(strings.NewReader(in))
	require.True(t, rr.Next())
	require.False(t, rr.Next())
	require.Error(t, rr.Err())
	require.Equal(t, 1, rr.Count())
}

func TestRowReaderFieldCountMismatchIsAnError(t *testing.T) {
	in := "title,price\na,1\nb,2,3\n"
	rr := NewRowReader(strings.NewReader(in))
	require.True(t, rr.Next())
	require.False(t, rr.Next())
	require.Error(t, rr.Err())
}

func TestRowReaderStopsAfterError(t *testing.T) {
	rr := NewRowReader(strings.NewReader("title,price\na,1,extra\n"))
	require.False(t, rr.Next())
	require.False(t, rr.Next())
	require.Error(t, rr.Err())
}

// countingReader proves rows are pulled incrementally, not slurped.
type countingReader struct {
	r    io.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

func TestRowReaderStreamsLazily(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("title,price\n")
	for i := 0; i < 100000; i++ {
		fmt.Fprintf(&sb, "product-%d,%d\n", i, i)
	}
	total := sb.Len()
	cr := &countingReader{r: strings.NewReader(sb.String())}
	rr := NewRowReader(cr)

	require.True(t, rr.Next())
	require.Less(t, cr.read, total/2, "first row should not consume the whole stream")
}
