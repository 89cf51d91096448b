package bytecode

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// 规范模式保证同一个代码对象总是编码为相同的字节
var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Marshal 把代码对象编码为带信封的 CBOR
func Marshal(code *Code) ([]byte, error) {
	if code == nil {
		return nil, fmt.Errorf("bytecode: marshal nil code")
	}
	data, err := encMode.Marshal(&unitFile{Magic: Magic, Version: FormatVersion, Code: code})
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal %s: %w", code.Name, err)
	}
	return data, nil
}

// WriteFile 把代码对象写入文件
func WriteFile(path string, code *Code) error {
	data, err := Marshal(code)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
