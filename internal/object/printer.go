package object

import (
	"fmt"
	"strings"
)

// Printer 生成对象的 repr，处理自引用容器
type Printer struct {
	sb   strings.Builder
	seen map[Object]bool
}

// WriteString 写入字符串
func (p *Printer) WriteString(s string) {
	p.sb.WriteString(s)
}

// Printf 格式化写入
func (p *Printer) Printf(format string, args ...interface{}) {
	fmt.Fprintf(&p.sb, format, args...)
}

// Write 写入对象的 repr；已在输出路径上的容器写作 "..."
func (p *Printer) Write(o Object) {
	if o == nil {
		p.sb.WriteString("<NULL>")
		return
	}
	typ := TypeOf(o)
	if typ.HasFlag(HaveGC) {
		if p.seen == nil {
			p.seen = make(map[Object]bool)
		}
		if p.seen[o] {
			switch typ {
			case ListType:
				p.sb.WriteString("[...]")
			case DictType:
				p.sb.WriteString("{...}")
			default:
				p.sb.WriteString("...")
			}
			return
		}
		p.seen[o] = true
		defer delete(p.seen, o)
	}
	if typ.Repr != nil {
		typ.Repr(o, p)
		return
	}
	p.Printf("<%s object at %p>", typ.Name, o)
}

// String 返回已生成的文本
func (p *Printer) String() string {
	return p.sb.String()
}

// Repr 返回对象的 repr
func Repr(o Object) string {
	var p Printer
	p.Write(o)
	return p.String()
}

// StrOf 返回对象的 str，未提供 Str 槽位时使用 repr
func StrOf(o Object) string {
	if typ := TypeOf(o); typ.Str != nil {
		return typ.Str(o)
	}
	return Repr(o)
}
