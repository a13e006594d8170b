package event

import "os"

// Enrich implements the metadata enricher from spec §4.1: if the source
// path exists, it records file size and extension. It never fails the
// pipeline — any stat error yields the event unchanged but still enriched
// (fingerprinted), matching "failure yields the event unchanged".
func Enrich(e Event, fp Fingerprinter) Event {
	enriched := e
	if e.SourcePath != "" {
		if info, err := os.Stat(e.SourcePath); err == nil {
			enriched = enriched.WithMetadata("size_bytes", itoa(info.Size()))
			if ext := extOf(e.SourcePath); ext != "" {
				enriched = enriched.WithMetadata("ext", ext)
			}
		}
	}
	return enriched.WithFingerprint(fp.Fingerprint(enriched))
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
