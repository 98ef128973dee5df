package emotion

import (
	"strings"
)

// Label 表示回答的情感倾向，取值直接用于语音分析文本。
type Label string

const (
	Neutral   Label = "中性"
	Positive  Label = "积极"
	Calm      Label = "平静"
	Nervous   Label = "紧张"
	Hesitant  Label = "犹豫"
	Confident Label = "自信"
)

// Decision 给出情感判断以及命中得分。
type Decision struct {
	Tone  Label
	Score int
}

// Acoustics 一轮回答的声学特征。
type Acoustics struct {
	LoudnessDB float64
	PitchHz    float64
}

var keywordBuckets = map[Label][]string{
	Confident: {
		"我负责", "我主导", "我设计", "我独立", "成功", "解决了", "显著", "提升了", "带领", "落地",
		"熟练", "精通", "擅长", "有信心", "完全可以", "achieved", "led", "designed", "confident",
	},
	Positive: {
		"喜欢", "热爱", "兴趣", "期待", "开心", "很高兴", "乐于", "愿意", "感谢", "收获", "成长",
		"激动", "great", "love", "excited", "happy",
	},
	Nervous: {
		"紧张", "抱歉", "不好意思", "对不起", "压力", "担心", "害怕", "慌", "忘了", "记不清",
		"sorry", "nervous", "worried",
	},
	Hesitant: {
		"嗯", "呃", "那个", "就是", "可能", "大概", "也许", "好像", "不太确定", "不确定", "应该是",
		"我觉得吧", "maybe", "perhaps", "not sure",
	},
	Calm: {
		"首先", "其次", "然后", "最后", "总结", "总的来说", "一方面", "另一方面", "因此", "所以",
		"first", "second", "finally",
	},
}

// fillerWeight 口头禅按出现次数累计，而不是只记一次。
var fillerWeight = map[string]int{
	"嗯":  1,
	"呃":  1,
	"那个": 1,
}

// Analyze 根据回答文本推断情感倾向。
func Analyze(answer string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(answer))
	if normalized == "" {
		return Decision{Tone: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			word = strings.ToLower(word)
			if w, ok := fillerWeight[word]; ok {
				scores[label] += w * strings.Count(normalized, word)
				continue
			}
			if strings.Contains(normalized, word) {
				scores[label] += 3
			}
		}
	}

	if n := strings.Count(answer, "!") + strings.Count(answer, "！"); n > 0 {
		scores[Positive] += n * 2
	}

	// 固定顺序保证同分时结果稳定
	best, bestScore := Neutral, 0
	for _, label := range []Label{Confident, Positive, Calm, Nervous, Hesitant} {
		if scores[label] > bestScore {
			best, bestScore = label, scores[label]
		}
	}
	return Decision{Tone: best, Score: bestScore}
}

// FromAcoustics 按响度与音高粗略判断情绪。
func FromAcoustics(a Acoustics) Label {
	switch {
	case a.LoudnessDB > -20 && a.PitchHz > 150:
		return Positive
	case a.LoudnessDB < -40 || a.PitchHz < 80:
		return Calm
	default:
		return Neutral
	}
}

// Estimate 综合文本与声学特征。文本有明显倾向时优先采用文本结果。
func Estimate(answer string, a Acoustics) Label {
	text := Analyze(answer)
	if text.Score >= 3 {
		return text.Tone
	}
	return FromAcoustics(a)
}
