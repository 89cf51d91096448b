package bytecode

// ============================================================================
// 编译单元文件格式
// ============================================================================

const (
	// CompiledFileExtension 编译产物文件后缀
	CompiledFileExtension = ".nbc"

	// AssemblyFileExtension 汇编源文件后缀
	AssemblyFileExtension = ".nasm"

	// Magic 文件魔数
	Magic = "NVBC"

	// FormatVersion 格式版本，不兼容的修改时递增
	FormatVersion uint16 = 1
)

// unitFile 文件的顶层信封
type unitFile struct {
	Magic   string `cbor:"1,keyasint"`
	Version uint16 `cbor:"2,keyasint"`
	Code    *Code  `cbor:"3,keyasint"`
}
