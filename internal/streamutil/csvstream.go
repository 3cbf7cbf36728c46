package streamutil

import (
	"bufio"
	"fmt"
)

// CsvStream wraps one byte-chunk stream whose payload is a well-formed CSV
// document with a header row. The Name must form a usable filename fragment
// when combined with ".csv" (spec.md §3).
type CsvStream struct {
	Name string
	Data ByteStream
}

// Filename returns Name with the ".csv" extension appended.
func (s CsvStream) Filename() string {
	return s.Name + ".csv"
}

// ConcatCsvStreams concatenates sub-streams into one logical CSV stream: the
// first stream's header row is retained, and subsequent streams' header
// rows are stripped. Per spec.md §4.1, this is the caller's contract --
// column order across streams must already match -- and by default this
// primitive does not parse the header beyond skipping one line.
//
// If strictHeaders is true, every stream's header line is compared
// byte-for-byte against the first, and a mismatch is rejected as an
// UnsupportedConversion-shaped error rather than silently producing a
// malformed document; this resolves the Open Question in spec.md §9 in
// favor of strict validation.
func ConcatCsvStreams(streams []CsvStream, strictHeaders bool) (CsvStream, error) {
	if len(streams) == 0 {
		return CsvStream{}, fmt.Errorf("cannot concatenate zero CSV streams")
	}
	if len(streams) == 1 {
		return streams[0], nil
	}

	writer, out := NewBytePipe()
	go func() {
		var firstHeader string
		for i, s := range streams {
			reader := bufio.NewReader(NewStreamReader(s.Data))
			header, err := reader.ReadString('\n')
			if err != nil && len(header) == 0 {
				writer.CloseWithError(fmt.Errorf("reading header of stream %q: %w", s.Name, err))
				return
			}
			if i == 0 {
				firstHeader = header
				if _, werr := writer.Write([]byte(header)); werr != nil {
					writer.CloseWithError(werr)
					return
				}
			} else if strictHeaders && header != firstHeader {
				writer.CloseWithError(fmt.Errorf(
					"cannot concatenate CSV streams: header of %q (%q) does not match first stream's header (%q)",
					s.Name, header, firstHeader))
				return
			}

			buf := make([]byte, 32*1024)
			for {
				n, rerr := reader.Read(buf)
				if n > 0 {
					if _, werr := writer.Write(buf[:n]); werr != nil {
						writer.CloseWithError(werr)
						return
					}
				}
				if rerr != nil {
					break
				}
			}
		}
		writer.Close()
	}()

	return CsvStream{Name: streams[0].Name, Data: out}, nil
}
