package shadercache

import (
	"fmt"
	"strconv"
	"strings"
)

// ComboVar is one combo variable and its inclusive value range.
type ComboVar struct {
	Name string
	Min  int
	Max  int
}

func (v ComboVar) span() int {
	return max(v.Max-v.Min+1, 1)
}

// ComboLayout lists the static and dynamic combo variables of a shader.
// Combo ids are mixed-radix numbers; the first variable of each list
// varies fastest.
type ComboLayout struct {
	Static  []ComboVar
	Dynamic []ComboVar
}

// StaticCount returns the number of static combos.
func (l ComboLayout) StaticCount() int { return comboCount(l.Static) }

// DynamicCount returns the number of dynamic combos.
func (l ComboLayout) DynamicCount() int { return comboCount(l.Dynamic) }

func comboCount(vars []ComboVar) int {
	n := 1
	for _, v := range vars {
		n *= v.span()
	}
	return n
}

// StaticCombo returns the static combo id for the given variable values.
// Variables missing from values take their minimum.
func (l ComboLayout) StaticCombo(values map[string]int) (uint32, error) {
	id, err := comboIndex(l.Static, values)
	return uint32(id), err // #nosec G115 -- bounded by StaticCount
}

// DynamicCombo returns the dynamic combo index for the given values.
func (l ComboLayout) DynamicCombo(values map[string]int) (int, error) {
	return comboIndex(l.Dynamic, values)
}

func comboIndex(vars []ComboVar, values map[string]int) (int, error) {
	id, stride := 0, 1
	for _, v := range vars {
		val, ok := values[v.Name]
		if !ok {
			val = v.Min
		}
		if val < v.Min || val > v.Max {
			return 0, fmt.Errorf("shadercache: combo %s=%d outside [%d,%d]", v.Name, val, v.Min, v.Max)
		}
		id += (val - v.Min) * stride
		stride *= v.span()
	}
	return id, nil
}

// Describe decomposes a static and dynamic combo into "NAME=value"
// pairs, static variables first.
func (l ComboLayout) Describe(staticCombo uint32, dynamicCombo int) string {
	var b strings.Builder
	describe(&b, l.Static, int(staticCombo), l.StaticCount())
	describe(&b, l.Dynamic, dynamicCombo, l.DynamicCount())
	return b.String()
}

func describe(b *strings.Builder, vars []ComboVar, id, count int) {
	if id < 0 || id >= count {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(b, "combo %d out of range [0,%d)", id, count)
		return
	}
	for _, v := range vars {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(v.Name)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(v.Min + id%v.span()))
		id /= v.span()
	}
}

// DescribeCombo renders a combo of shader name for diagnostics, using
// its registered layout when there is one.
func (c *Cache) DescribeCombo(name string, staticCombo uint32, dynamicCombo int) string {
	if l, ok := c.layouts[name]; ok {
		return l.Describe(staticCombo, dynamicCombo)
	}
	return fmt.Sprintf("static=%d dynamic=%d", staticCombo, dynamicCombo)
}
