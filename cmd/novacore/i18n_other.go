//go:build !windows

package main

// systemLocaleChinese 非 Windows 系统只看环境变量
func systemLocaleChinese() bool {
	return false
}
