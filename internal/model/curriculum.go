package model

// CEFRLevel 欧洲语言共同参考框架等级
type CEFRLevel string

const (
	LevelA1 CEFRLevel = "A1"
	LevelA2 CEFRLevel = "A2"
	LevelB1 CEFRLevel = "B1"
	LevelB2 CEFRLevel = "B2"
	LevelC1 CEFRLevel = "C1"
	LevelC2 CEFRLevel = "C2"
)

type CurriculumEntry struct {
	Verb  string    `json:"verb"`
	Level CEFRLevel `json:"level"`
}

// Curriculum 固定顺序的短语动词课程表，下标是唯一寻址方式，运行期只读
type Curriculum struct {
	entries []CurriculumEntry
}

// NewCurriculum 至少需要一个条目
func NewCurriculum(entries []CurriculumEntry) *Curriculum {
	if len(entries) == 0 {
		panic("curriculum must not be empty")
	}
	cp := make([]CurriculumEntry, len(entries))
	copy(cp, entries)
	return &Curriculum{entries: cp}
}

func (c *Curriculum) Len() int {
	return len(c.entries)
}

func (c *Curriculum) LastIndex() int {
	return len(c.entries) - 1
}

// Clamp 把任意下标收敛到 [0, N-1]
func (c *Curriculum) Clamp(i int) int {
	if i < 0 {
		return 0
	}
	if i > c.LastIndex() {
		return c.LastIndex()
	}
	return i
}

// At 越界下标会被 Clamp
func (c *Curriculum) At(i int) CurriculumEntry {
	return c.entries[c.Clamp(i)]
}

func (c *Curriculum) Entries() []CurriculumEntry {
	cp := make([]CurriculumEntry, len(c.entries))
	copy(cp, c.entries)
	return cp
}

// PhrasalVerbs 默认课程表，按难度递增
var PhrasalVerbs = []CurriculumEntry{
	{Verb: "wake up", Level: LevelA1},
	{Verb: "get up", Level: LevelA1},
	{Verb: "turn on", Level: LevelA1},
	{Verb: "turn off", Level: LevelA1},
	{Verb: "look for", Level: LevelA2},
	{Verb: "look up", Level: LevelA2},
	{Verb: "find out", Level: LevelA2},
	{Verb: "give up", Level: LevelA2},
	{Verb: "pick up", Level: LevelA2},
	{Verb: "put on", Level: LevelA2},
	{Verb: "carry on", Level: LevelB1},
	{Verb: "give in", Level: LevelB1},
	{Verb: "look after", Level: LevelB1},
	{Verb: "run out of", Level: LevelB1},
	{Verb: "set up", Level: LevelB1},
	{Verb: "turn down", Level: LevelB1},
	{Verb: "bring up", Level: LevelB2},
	{Verb: "come across", Level: LevelB2},
	{Verb: "figure out", Level: LevelB2},
	{Verb: "put off", Level: LevelB2},
	{Verb: "put up with", Level: LevelB2},
	{Verb: "take over", Level: LevelB2},
	{Verb: "back down", Level: LevelC1},
	{Verb: "brush up on", Level: LevelC1},
	{Verb: "iron out", Level: LevelC1},
	{Verb: "play down", Level: LevelC1},
	{Verb: "fob off", Level: LevelC2},
	{Verb: "gloss over", Level: LevelC2},
}
