package core

// Candidate delimiters in order of preference.
var delimiterCandidates = []rune{',', ';'}

// DefaultSniffBytes is how much of an upload is sampled for delimiter
// detection.
const DefaultSniffBytes = 5000

// sniffDelimiter picks the delimiter that occurs the same non-zero number of
// times, outside quotes, in every sampled record. When no candidate is
// consistent, the one that appears in the header and agrees with the most
// records wins, so the parser can report the offending line. complete
// reports whether sample is the entire input; otherwise its trailing
// partial record is ignored unless it is the only one.
func sniffDelimiter(sample []byte, complete bool) (rune, error) {
	records := splitRecords(sample, complete)
	if len(records) == 0 {
		return 0, &FormatError{Reason: "empty file"}
	}

	var (
		best      rune
		bestAgree int
	)
	for _, d := range delimiterCandidates {
		agree := agreement(records, d)
		if agree == len(records) {
			return d, nil
		}
		if agree > bestAgree {
			best, bestAgree = d, agree
		}
	}
	if bestAgree > 0 {
		return best, nil
	}
	return 0, &FormatError{Reason: "could not determine delimiter (expected ',' or ';' in the header)"}
}

// agreement counts the records with as many delim as the header. A header
// without delim scores zero.
func agreement(records [][]byte, delim rune) int {
	want := countOutsideQuotes(records[0], delim)
	if want == 0 {
		return 0
	}
	n := 0
	for _, rec := range records {
		if countOutsideQuotes(rec, delim) == want {
			n++
		}
	}
	return n
}

// splitRecords splits sample on newlines that are not inside quoted fields.
// Blank records are dropped.
func splitRecords(sample []byte, complete bool) [][]byte {
	var (
		records  [][]byte
		start    int
		inQuotes bool
	)
	for i, b := range sample {
		switch {
		case b == '"':
			inQuotes = !inQuotes
		case b == '\n' && !inQuotes:
			records = appendRecord(records, sample[start:i])
			start = i + 1
		}
	}
	if start < len(sample) && (complete || len(records) == 0) {
		records = appendRecord(records, sample[start:])
	}
	return records
}

func appendRecord(records [][]byte, rec []byte) [][]byte {
	if n := len(rec); n > 0 && rec[n-1] == '\r' {
		rec = rec[:n-1]
	}
	if len(rec) == 0 {
		return records
	}
	return append(records, rec)
}

func countOutsideQuotes(rec []byte, delim rune) int {
	n := 0
	inQuotes := false
	for _, b := range rec {
		switch {
		case b == '"':
			inQuotes = !inQuotes
		case rune(b) == delim && !inQuotes:
			n++
		}
	}
	return n
}
