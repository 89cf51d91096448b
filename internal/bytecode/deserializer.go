package bytecode

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrBadMagic 不是编译单元文件
	ErrBadMagic = errors.New("bytecode: bad magic")
	// ErrVersion 格式版本不受支持
	ErrVersion = errors.New("bytecode: unsupported format version")
)

// Unmarshal 解码并校验编译单元
func Unmarshal(data []byte) (*Code, error) {
	var u unitFile
	if err := cbor.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal unit: %w", err)
	}
	if u.Magic != Magic {
		return nil, fmt.Errorf("%w %q", ErrBadMagic, u.Magic)
	}
	if u.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrVersion, u.Version, FormatVersion)
	}
	if u.Code == nil {
		return nil, fmt.Errorf("bytecode: unit has no code")
	}
	if err := Verify(u.Code); err != nil {
		return nil, err
	}
	return u.Code, nil
}

// ReadFile 读取编译单元文件
func ReadFile(path string) (*Code, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	code, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return code, nil
}
