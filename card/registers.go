package card

// Common BAR 2 register byte offsets, shared by both card families.
const (
	temperatureByteOffset      = 0x200028
	serialNumberByteOffset     = 0x20002c
	firmwareCompileInfoByteOff = 0x200030 // not pinned by the register map; follows the BAR2 page's layout
)

const (
	temperatureIndex  = temperatureByteOffset / 4
	serialNumberIndex = serialNumberByteOffset / 4
	firmwareInfoIndex = firmwareCompileInfoByteOff / 4
)

// firmwareReservedMask isolates bits [31:24] of FIRMWARE_COMPILE_INFO.
const firmwareReservedMask = 0xff000000

// firmwareReservedExpect is the only value bits [31:24] may hold.
const firmwareReservedExpect = 0x02000000
