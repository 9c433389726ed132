package presentation

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/bobmcallan/lingqian/internal/catalog"
	"github.com/bobmcallan/lingqian/internal/divination"
)

func TestLevelClass(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"大吉", LevelHigh},
		{"上吉", LevelHigh},
		{"中吉", LevelHigh},
		{"下", LevelLow},
		{"下下", LevelLow},
		{"下吉", LevelLow},
		{"中平", LevelMid},
		{"上上", LevelMid},
		{"", LevelMid},
	}
	for _, tt := range tests {
		if got := LevelClass(tt.level); got != tt.want {
			t.Errorf("LevelClass(%q) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestOutcomeLabel(t *testing.T) {
	tests := map[divination.Outcome]string{
		divination.OutcomeAccept:   "聖筊",
		divination.OutcomeLaughing: "笑筊",
		divination.OutcomeYin:      "陰筊",
		divination.OutcomeNone:     "",
	}
	for o, want := range tests {
		if got := OutcomeLabel(o); got != want {
			t.Errorf("OutcomeLabel(%s) = %q, want %q", o, got, want)
		}
	}
	if OutcomeHint(divination.OutcomeYin) != OutcomeHint(divination.OutcomeLaughing) {
		t.Error("both rejections share one hint")
	}
}

func TestExportFilename(t *testing.T) {
	tests := []struct {
		deity, title, want string
	}{
		{"媽祖", "第一首 甲子", "媽祖靈籤_第一首 甲子.png"},
		{"觀音", "第1/2籤", "觀音靈籤_第1_2籤.png"},
		{"關帝", "a\nb", "關帝靈籤_ab.png"},
		{"", "", "_靈籤__.png"},
	}
	for _, tt := range tests {
		if got := ExportFilename(tt.deity, tt.title); got != tt.want {
			t.Errorf("ExportFilename(%q, %q) = %q, want %q", tt.deity, tt.title, got, tt.want)
		}
	}
}

func TestViewTitle(t *testing.T) {
	if got := ViewTitle("媽祖", "第一首"); got != "媽祖靈籤 - 第一首" {
		t.Errorf("unexpected view title %q", got)
	}
}

func TestPoemLines(t *testing.T) {
	got := PoemLines("日出便見風雲散，光明清淨照世間\n\n一向前途通大道。萬事清吉保平安")
	want := []string{"日出便見風雲散", "光明清淨照世間", "一向前途通大道", "萬事清吉保平安"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PoemLines = %v, want %v", got, want)
	}
	if len(PoemLines("")) != 0 {
		t.Error("expected no lines for empty poem")
	}
}

func TestCardFromSnapshot(t *testing.T) {
	if _, err := CardFromSnapshot(divination.Snapshot{}); !errors.Is(err, divination.ErrNoResult) {
		t.Errorf("expected ErrNoResult, got %v", err)
	}

	entry := catalog.FortuneEntry{Title: "第三首", Level: "下", Poem: "a\nb", Explain: "守"}
	c, err := CardFromSnapshot(divination.Snapshot{DeityName: "媽祖", Finalized: &entry})
	if err != nil {
		t.Fatal(err)
	}
	if c.LevelClass != LevelLow || c.Outcome != "聖筊" || len(c.PoemLines) != 2 {
		t.Errorf("unexpected card %+v", c)
	}
	if c.Filename() != "媽祖靈籤_第三首.png" {
		t.Errorf("unexpected filename %q", c.Filename())
	}
}

func testCard() Card {
	return NewCard("媽祖", catalog.FortuneEntry{
		Title:   "第一首 甲子",
		Level:   "大吉",
		Poem:    "日出便見風雲散\n光明清淨照世間",
		Explain: "撥雲見日<之象>",
	})
}

func TestRenderer_Fragment(t *testing.T) {
	r, err := NewRenderer("")
	if err != nil {
		t.Fatal(err)
	}
	html, err := r.Fragment(testCard())
	if err != nil {
		t.Fatal(err)
	}
	s := string(html)
	for _, want := range []string{`id="fortune-card"`, "level-high", "<p>日出便見風雲散</p>", "媽祖靈籤", "&lt;之象&gt;"} {
		if !strings.Contains(s, want) {
			t.Errorf("fragment missing %q:\n%s", want, s)
		}
	}
}

func TestRenderer_FragmentWithoutOptionalFields(t *testing.T) {
	r, _ := NewRenderer("")
	html, err := r.Fragment(NewCard("觀音", catalog.FortuneEntry{Title: "第九籤"}))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(html), "fortune-card__level") || strings.Contains(string(html), "解曰") {
		t.Errorf("empty level and explain should be omitted:\n%s", html)
	}
}

func TestRenderer_Document(t *testing.T) {
	r, _ := NewRenderer("#fff9e6")
	doc, err := r.Document(testCard())
	if err != nil {
		t.Fatal(err)
	}
	s := string(doc)
	if !strings.HasPrefix(s, "<!DOCTYPE html>") {
		t.Error("document should be a full page")
	}
	if !strings.Contains(s, "background: #fff9e6") {
		t.Errorf("document missing background:\n%s", s)
	}
	if !strings.Contains(s, "<title>媽祖靈籤 - 第一首 甲子</title>") {
		t.Error("document missing title")
	}
}

func TestRenderer_ViewPage(t *testing.T) {
	r, _ := NewRenderer("")
	page, err := r.ViewPage(testCard(), []byte("png"))
	if err != nil {
		t.Fatal(err)
	}
	s := string(page)
	if !strings.Contains(s, `src="data:image/png;base64,cG5n"`) {
		t.Errorf("view page missing data URL:\n%s", s)
	}
	if !strings.Contains(s, "<title>媽祖靈籤 - 第一首 甲子</title>") {
		t.Error("view page missing title")
	}
}
