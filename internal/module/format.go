package module

import "path/filepath"

// Format identifies which runtime variant an artifact requires.
type Format string

const (
	FormatWasm   Format = "wasm"
	FormatNative Format = "native"
)

// DetectFormat classifies an artifact path by extension, per spec §4.3:
// .wasm → Wasm; .so/.dll/.dylib → Native; anything else → unsupported.
func DetectFormat(path string) (Format, error) {
	switch filepath.Ext(path) {
	case ".wasm":
		return FormatWasm, nil
	case ".so", ".dll", ".dylib":
		return FormatNative, nil
	default:
		return "", ErrUnsupportedFormat
	}
}
