package transcript

import "strings"

// Outcome 描述一次合并对稳定文本的影响。
type Outcome int

const (
	// Unchanged 片段与当前文本相同
	Unchanged Outcome = iota
	// Extended 片段包含当前文本，整体替换
	Extended
	// Suppressed 片段已被当前文本包含（回退或重复）
	Suppressed
	// Appended 内容不相交，拼接为新的一段
	Appended
	// Coalesced 在防抖窗口内被后续片段覆盖，从未参与合并
	Coalesced
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Extended:
		return "extended"
	case Suppressed:
		return "suppressed"
	case Appended:
		return "appended"
	case Coalesced:
		return "coalesced"
	default:
		return "unknown"
	}
}

// Merge applies one trimmed, non-empty fragment to stable.
func Merge(stable, fragment string) (string, Outcome) {
	switch {
	case fragment == stable:
		return stable, Unchanged
	case strings.Contains(fragment, stable):
		return fragment, Extended
	case strings.Contains(stable, fragment):
		return stable, Suppressed
	default:
		return stable + " " + fragment, Appended
	}
}
