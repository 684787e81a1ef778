package cryptostream

import "unicode/utf8"

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}
