package object

import (
	"github.com/tangzhangming/novacore/internal/coord"
	"github.com/tangzhangming/novacore/internal/i18n"
)

// Dict 保持插入顺序的映射，键限于 None、bool、int、str
type Dict struct {
	Header
	mu      coord.Mutex
	entries []dictEntry
	index   map[Key]int
	used    int
}

type dictEntry struct {
	key, value Object // key 为 nil 表示已删除
}

// DictType dict 的类型描述符
var DictType = &Type{}

func init() {
	*DictType = Type{
		Name:      "dict",
		BasicSize: 48,
		Flags:     HaveGC | WeakRefable,
		Dealloc: func(t *Thread, o Object) {
			o.(*Dict).drop(t)
		},
		Traverse: func(o Object, visit func(Object) error) error {
			for _, e := range o.(*Dict).entries {
				if e.key == nil {
					continue
				}
				if err := visit(e.key); err != nil {
					return err
				}
				if err := visit(e.value); err != nil {
					return err
				}
			}
			return nil
		},
		Clear: func(t *Thread, o Object) error {
			o.(*Dict).drop(t)
			return nil
		},
		Repr: func(o Object, p *Printer) {
			p.WriteString("{")
			first := true
			for _, e := range o.(*Dict).entries {
				if e.key == nil {
					continue
				}
				if !first {
					p.WriteString(", ")
				}
				first = false
				p.Write(e.key)
				p.WriteString(": ")
				p.Write(e.value)
			}
			p.WriteString("}")
		},
		Len: func(o Object) int { return o.(*Dict).used },
		GetItem: func(t *Thread, o, key Object) (Object, error) {
			v, ok, err := o.(*Dict).Get(t, key)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, t.Raise(ExcKeyError, Repr(key))
			}
			return v, nil
		},
		SetItem: func(t *Thread, o, key, value Object) error {
			return o.(*Dict).Set(t, key, value)
		},
		Contains: func(t *Thread, o, item Object) (bool, error) {
			v, ok, err := o.(*Dict).Get(t, item)
			if ok {
				t.Decref(v)
			}
			return ok, err
		},
		Iter: func(t *Thread, o Object) (Object, error) {
			return t.newSeqIter(DictIterType, o)
		},
	}
}

// NewDict 创建空字典
func (t *Thread) NewDict() (*Dict, error) {
	d := &Dict{index: make(map[Key]int)}
	if err := t.Alloc(DictType, d); err != nil {
		return nil, err
	}
	return d, nil
}

// HashKey 计算字典键
func (t *Thread) HashKey(o Object) (Key, error) {
	typ := TypeOf(o)
	if typ.Hash != nil {
		if k, ok := typ.Hash(o); ok {
			return k, nil
		}
	}
	return Key{}, t.Raisef(ExcTypeError, i18n.ErrUnhashable, typ.Name)
}

// StrKey 字符串键
func StrKey(s string) Key {
	return Key{kind: keyStr, s: s}
}

// Get 查找键，找到时返回值的新引用
func (d *Dict) Get(t *Thread, key Object) (Object, bool, error) {
	k, err := t.HashKey(key)
	if err != nil {
		return nil, false, err
	}
	v, ok := d.lookup(t, k)
	return v, ok, nil
}

// GetStr 按字符串名查找，找到时返回值的新引用
func (d *Dict) GetStr(t *Thread, name string) (Object, bool) {
	return d.lookup(t, StrKey(name))
}

func (d *Dict) lookup(t *Thread, k Key) (Object, bool) {
	t.Lock(&d.mu)
	defer t.Unlock(&d.mu)
	i, ok := d.index[k]
	if !ok {
		return nil, false
	}
	return t.NewRef(d.entries[i].value), true
}

// Set 设置键值（增加两者的引用计数）
func (d *Dict) Set(t *Thread, key, value Object) error {
	k, err := t.HashKey(key)
	if err != nil {
		return err
	}
	d.set(t, k, key, value)
	return nil
}

// SetStr 以字符串为键设置值
func (d *Dict) SetStr(t *Thread, name string, value Object) error {
	k := StrKey(name)
	t.Lock(&d.mu)
	i, ok := d.index[k]
	if ok {
		old := d.entries[i].value
		d.entries[i].value = t.NewRef(value)
		t.Unlock(&d.mu)
		t.Decref(old)
		return nil
	}
	t.Unlock(&d.mu)

	key, err := t.NewStr(name)
	if err != nil {
		return err
	}
	d.set(t, k, key, value)
	t.Decref(key)
	return nil
}

func (d *Dict) set(t *Thread, k Key, key, value Object) {
	t.Incref(value)
	t.Lock(&d.mu)
	if i, ok := d.index[k]; ok {
		old := d.entries[i].value
		d.entries[i].value = value
		t.Unlock(&d.mu)
		t.Decref(old)
		return
	}
	t.Incref(key)
	d.index[k] = len(d.entries)
	d.entries = append(d.entries, dictEntry{key: key, value: value})
	d.used++
	t.Unlock(&d.mu)
}

// Delete 删除键，返回是否存在
func (d *Dict) Delete(t *Thread, key Object) (bool, error) {
	k, err := t.HashKey(key)
	if err != nil {
		return false, err
	}
	t.Lock(&d.mu)
	i, ok := d.index[k]
	if !ok {
		t.Unlock(&d.mu)
		return false, nil
	}
	e := d.entries[i]
	d.entries[i] = dictEntry{}
	delete(d.index, k)
	d.used--
	if d.used < len(d.entries)/2 {
		d.compact()
	}
	t.Unlock(&d.mu)
	t.Decref(e.key)
	t.Decref(e.value)
	return true, nil
}

// compact 移除已删除的槽位，调用方持有锁
func (d *Dict) compact() {
	live := make([]dictEntry, 0, d.used)
	for _, e := range d.entries {
		if e.key != nil {
			live = append(live, e)
		}
	}
	d.entries = live
	for i, e := range live {
		k, _ := TypeOf(e.key).Hash(e.key)
		d.index[k] = i
	}
}

// Len 返回键的数量
func (d *Dict) Len(t *Thread) int {
	t.Lock(&d.mu)
	defer t.Unlock(&d.mu)
	return d.used
}

// Keys 按插入顺序返回键，每个键持有一个新引用
func (d *Dict) Keys(t *Thread) []Object {
	t.Lock(&d.mu)
	keys := make([]Object, 0, d.used)
	for _, e := range d.entries {
		if e.key != nil {
			keys = append(keys, t.NewRef(e.key))
		}
	}
	t.Unlock(&d.mu)
	return keys
}

// keyAt 返回位置 pos 及之后第一个存活键的新引用与下一个位置
func (d *Dict) keyAt(t *Thread, pos int) (Object, int) {
	t.Lock(&d.mu)
	defer t.Unlock(&d.mu)
	for ; pos < len(d.entries); pos++ {
		if k := d.entries[pos].key; k != nil {
			return t.NewRef(k), pos + 1
		}
	}
	return nil, pos
}

func (d *Dict) drop(t *Thread) {
	t.Lock(&d.mu)
	entries := d.entries
	d.entries = nil
	d.index = make(map[Key]int)
	d.used = 0
	t.Unlock(&d.mu)
	for _, e := range entries {
		if e.key != nil {
			t.Decref(e.key)
			t.Decref(e.value)
		}
	}
}
