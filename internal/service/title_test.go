package service

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTitleMaker(t *testing.T) {
	Convey("对话标题", t, func() {
		titles := NewTitleMaker()

		Convey("不超过 4 个词时原样使用", func() {
			So(titles.Make("What is RAG?"), ShouldEqual, "What is RAG?")
			So(titles.Make("  one   two three four "), ShouldEqual, "one two three four")
		})

		Convey("超过 4 个词时截断并追加 ...", func() {
			So(titles.Make("Summarize the latest papers on retrieval"), ShouldEqual, "Summarize the latest papers...")
		})

		Convey("空白输入使用默认标题", func() {
			So(titles.Make("   "), ShouldEqual, DefaultTitle)
		})

		Convey("中文按词切分", func() {
			title := titles.Make("我爱北京天安门，今天天气很好")
			So(title, ShouldStartWith, "我爱")
			So(title, ShouldEndWith, "...")
			So(title, ShouldNotContainSubstring, "，")
		})
	})
}

func TestTitleHelpers(t *testing.T) {
	Convey("分词辅助函数", t, func() {
		So(splitHan("AI研究"), ShouldResemble, []string{"AI", "研", "究"})
		So(joinWords([]string{"GPT", "模型", "评测", "report"}), ShouldEqual, "GPT模型评测report")
		So(joinWords([]string{"deep", "learning"}), ShouldEqual, "deep learning")
		So(isPunct("，"), ShouldBeTrue)
		So(isPunct("词"), ShouldBeFalse)
	})
}
