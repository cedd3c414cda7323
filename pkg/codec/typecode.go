package codec

// Typecodes follow the MessagePack format table exactly (spec.md section
// 4.1: "functionally compatible with MessagePack"); codec_test.go checks
// that vmihailenco/msgpack/v5 decodes this package's output to the same
// values.
const (
	tcPosFixintMax = 0x7f
	tcFixmapBase   = 0x80
	tcFixmapMax    = 0x8f
	tcFixarrayBase = 0x90
	tcFixarrayMax  = 0x9f
	tcFixstrBase   = 0xa0
	tcFixstrMax    = 0xbf

	tcNil     = 0xc0
	tcFalse   = 0xc2
	tcTrue    = 0xc3
	tcBin8    = 0xc4
	tcBin16   = 0xc5
	tcBin32   = 0xc6
	tcExt8    = 0xc7
	tcExt16   = 0xc8
	tcExt32   = 0xc9
	tcFloat32 = 0xca
	tcFloat64 = 0xcb
	tcUint8   = 0xcc
	tcUint16  = 0xcd
	tcUint32  = 0xce
	tcUint64  = 0xcf
	tcInt8    = 0xd0
	tcInt16   = 0xd1
	tcInt32   = 0xd2
	tcInt64   = 0xd3
	tcFixext1 = 0xd4
	tcFixext2 = 0xd5
	tcFixext4 = 0xd6
	tcFixext8 = 0xd7
	tcFixext16 = 0xd8
	tcStr8    = 0xd9
	tcStr16   = 0xda
	tcStr32   = 0xdb
	tcArray16 = 0xdc
	tcArray32 = 0xdd
	tcMap16   = 0xde
	tcMap32   = 0xdf

	tcNegFixintBase = 0xe0
)

func isPosFixint(tc byte) bool  { return tc <= tcPosFixintMax }
func isNegFixint(tc byte) bool  { return tc >= tcNegFixintBase }
func isFixmap(tc byte) bool     { return tc >= tcFixmapBase && tc <= tcFixmapMax }
func isFixarray(tc byte) bool   { return tc >= tcFixarrayBase && tc <= tcFixarrayMax }
func isFixstr(tc byte) bool     { return tc >= tcFixstrBase && tc <= tcFixstrMax }
