// Package symbolication resolves minified stack frames back to original
// source positions using release artifacts: flat symbol maps and Source Map
// v3 documents with base64 VLQ-encoded mappings.
package symbolication

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Val = func() map[byte]int {
	m := make(map[byte]int, len(base64Chars))
	for i := 0; i < len(base64Chars); i++ {
		m[base64Chars[i]] = i
	}
	return m
}()

const (
	vlqContinuation = 0x20
	vlqMask         = 0x1F
)

// vlqDecode decodes one base64 VLQ segment into its signed integers.
// Each 6-bit unit carries 5 payload bits; bit 0x20 signals continuation.
// On the final unit of a value the least-significant accumulated bit is the
// sign. Characters outside the base64 alphabet stop decoding.
func vlqDecode(segment string) []int {
	var values []int
	shift := 0
	result := 0
	for i := 0; i < len(segment); i++ {
		val, ok := base64Val[segment[i]]
		if !ok {
			break
		}
		result += (val & vlqMask) << shift
		if val&vlqContinuation != 0 {
			shift += 5
			continue
		}
		value := result >> 1
		if result&1 != 0 {
			value = -value
		}
		values = append(values, value)
		result = 0
		shift = 0
	}
	return values
}

// vlqEncode encodes signed integers as one base64 VLQ segment. Used to build
// mapping fixtures; the inverse of vlqDecode.
func vlqEncode(values ...int) string {
	var out []byte
	for _, v := range values {
		n := v << 1
		if v < 0 {
			n = (-v << 1) | 1
		}
		for {
			digit := n & vlqMask
			n >>= 5
			if n > 0 {
				digit |= vlqContinuation
			}
			out = append(out, base64Chars[digit])
			if n == 0 {
				break
			}
		}
	}
	return string(out)
}
