package localstore

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"intellisurf/internal/model"
	"intellisurf/internal/repository"
)

func TestStore(t *testing.T) {
	Convey("本地 JSON 存储", t, func() {
		store, err := New(t.TempDir())
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("Ensure 只创建一次", func() {
			created, err := store.Ensure(ctx, &model.Conversation{ID: "conv_a", UserID: "u1", Title: "First"})
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)

			created, err = store.Ensure(ctx, &model.Conversation{ID: "conv_a", UserID: "u1", Title: "Other"})
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)

			conv, err := store.FindByID(ctx, "conv_a")
			So(err, ShouldBeNil)
			So(conv.Title, ShouldEqual, "First")
			So(conv.Status, ShouldEqual, model.ConversationActive)
		})

		Convey("Touch 累加消息数", func() {
			_, err := store.Ensure(ctx, &model.Conversation{ID: "conv_b", UserID: "u1"})
			So(err, ShouldBeNil)
			So(store.Touch(ctx, "conv_b", 1), ShouldBeNil)
			So(store.Touch(ctx, "conv_b", 2), ShouldBeNil)

			conv, err := store.FindByID(ctx, "conv_b")
			So(err, ShouldBeNil)
			So(conv.MessageCount, ShouldEqual, 3)
		})

		Convey("不存在的对话返回 ErrNotFound", func() {
			_, err := store.FindByID(ctx, "conv_missing")
			So(err, ShouldEqual, repository.ErrNotFound)
			So(store.Touch(ctx, "conv_missing", 1), ShouldEqual, repository.ErrNotFound)
		})

		Convey("只归档超过期限的活跃对话", func() {
			old := time.Now().Add(-40 * 24 * time.Hour)
			_, err := store.Ensure(ctx, &model.Conversation{ID: "conv_old", UserID: "u1", CreatedAt: old})
			So(err, ShouldBeNil)
			_, err = store.Ensure(ctx, &model.Conversation{ID: "conv_deleted", UserID: "u1", CreatedAt: old, Status: model.ConversationDeleted})
			So(err, ShouldBeNil)
			_, err = store.Ensure(ctx, &model.Conversation{ID: "conv_new", UserID: "u1"})
			So(err, ShouldBeNil)

			n, err := store.ArchiveBefore(ctx, time.Now().Add(-30*24*time.Hour))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			conv, _ := store.FindByID(ctx, "conv_old")
			So(conv.Status, ShouldEqual, model.ConversationArchived)
			conv, _ = store.FindByID(ctx, "conv_deleted")
			So(conv.Status, ShouldEqual, model.ConversationDeleted)
			conv, _ = store.FindByID(ctx, "conv_new")
			So(conv.Status, ShouldEqual, model.ConversationActive)

			n, err = store.ArchiveBefore(ctx, time.Now().Add(-30*24*time.Hour))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("消息按时间正序返回最近 N 条", func() {
			base := time.Now()
			offsets := map[string]int{"msg_1": 1, "msg_2": 2, "msg_3": 3}
			for _, id := range []string{"msg_3", "msg_1", "msg_2"} {
				So(store.Insert(ctx, &model.Message{
					ID:             id,
					ConversationID: "conv_c",
					Role:           model.RoleUser,
					Content:        id,
					Timestamp:      base.Add(time.Duration(offsets[id]) * time.Second),
				}), ShouldBeNil)
			}

			all, err := store.ListByConversation(ctx, "conv_c", 0)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 3)
			So(all[0].ID, ShouldEqual, "msg_1")
			So(all[2].ID, ShouldEqual, "msg_3")

			last, err := store.ListByConversation(ctx, "conv_c", 2)
			So(err, ShouldBeNil)
			So(last, ShouldHaveLength, 2)
			So(last[0].ID, ShouldEqual, "msg_2")
		})

		Convey("没有消息的对话返回空列表", func() {
			msgs, err := store.ListByConversation(ctx, "conv_empty", 10)
			So(err, ShouldBeNil)
			So(msgs, ShouldBeEmpty)
		})

		Convey("拒绝包含路径的 id", func() {
			_, err := store.Ensure(ctx, &model.Conversation{ID: "../escape"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestDocumentStore(t *testing.T) {
	Convey("本地文档请求存储", t, func() {
		docs, err := NewDocumentStore(t.TempDir())
		So(err, ShouldBeNil)
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

		for i, id := range []string{"doc_c", "doc_a", "doc_b"} {
			So(docs.Create(ctx, &model.DocumentRequest{
				ID:        id,
				UserID:    "u1",
				Status:    model.DocumentPending,
				CreatedAt: base.Add(time.Duration(len(id)-i) * time.Minute),
			}), ShouldBeNil)
		}

		Convey("重复创建报错", func() {
			So(docs.Create(ctx, &model.DocumentRequest{ID: "doc_a"}), ShouldNotBeNil)
		})

		Convey("待处理请求按创建时间排序，已完成的不返回", func() {
			done, err := docs.FindByID(ctx, "doc_a")
			So(err, ShouldBeNil)
			done.Status = model.DocumentCompleted
			So(docs.Update(ctx, done), ShouldBeNil)

			pending, err := docs.ListPending(ctx, 0)
			So(err, ShouldBeNil)
			So(pending, ShouldHaveLength, 2)
			So(pending[0].CreatedAt.Before(pending[1].CreatedAt), ShouldBeTrue)

			limited, err := docs.ListPending(ctx, 1)
			So(err, ShouldBeNil)
			So(limited, ShouldHaveLength, 1)
			So(limited[0].ID, ShouldEqual, pending[0].ID)
		})

		Convey("不存在的请求返回 ErrNotFound", func() {
			_, err := docs.FindByID(ctx, "doc_missing")
			So(err, ShouldEqual, repository.ErrNotFound)
			So(docs.Update(ctx, &model.DocumentRequest{ID: "doc_missing"}), ShouldEqual, repository.ErrNotFound)
		})
	})
}
