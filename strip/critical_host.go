//go:build !tinygo

package strip

func defaultMasker() Masker {
	return &ThreadMasker{}
}
