package repository

import (
	"context"
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"intellisurf/internal/config"
	"intellisurf/internal/model"
	"intellisurf/internal/pkg/id"
	"intellisurf/internal/pkg/mongodb"
)

// 需要真实 MongoDB：MONGO_URI=mongodb://localhost:27017 go test ./internal/repository/
func TestMongoRepos(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI 未设置，跳过 MongoDB 集成测试")
	}

	ctx := context.Background()
	client, err := mongodb.New(ctx, &config.MongoConfig{URI: uri, Database: "intellisurf_test"})
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	defer client.Close(ctx)

	db := client.Database()
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	Convey("MongoDB 仓库", t, func() {
		convRepo := NewConversationRepo(db)
		msgRepo := NewMessageRepo(db)
		convID := id.Conversation()

		Convey("Ensure + Touch", func() {
			created, err := convRepo.Ensure(ctx, &model.Conversation{ID: convID, UserID: "u1", Title: "Test"})
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)

			created, err = convRepo.Ensure(ctx, &model.Conversation{ID: convID, UserID: "u1", Title: "Again"})
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)

			So(convRepo.Touch(ctx, convID, 2), ShouldBeNil)
			conv, err := convRepo.FindByID(ctx, convID)
			So(err, ShouldBeNil)
			So(conv.Title, ShouldEqual, "Test")
			So(conv.MessageCount, ShouldEqual, 2)

			So(convRepo.Touch(ctx, "conv_missing", 1), ShouldEqual, ErrNotFound)
		})

		Convey("归档长时间未更新的对话", func() {
			_, err := convRepo.Ensure(ctx, &model.Conversation{ID: convID, UserID: "u1"})
			So(err, ShouldBeNil)

			n, err := convRepo.ArchiveBefore(ctx, time.Now().Add(time.Minute))
			So(err, ShouldBeNil)
			So(n, ShouldBeGreaterThanOrEqualTo, 1)

			conv, err := convRepo.FindByID(ctx, convID)
			So(err, ShouldBeNil)
			So(conv.Status, ShouldEqual, model.ConversationArchived)
		})

		Convey("文档请求", func() {
			docRepo := NewDocumentRequestRepo(db)
			req := &model.DocumentRequest{
				ID:           id.Document(),
				UserID:       "u1",
				DocumentType: "report",
				Status:       model.DocumentPending,
				CreatedAt:    time.Now().Truncate(time.Millisecond),
			}
			So(docRepo.Create(ctx, req), ShouldBeNil)

			pending, err := docRepo.ListPending(ctx, 0)
			So(err, ShouldBeNil)
			found := false
			for _, p := range pending {
				found = found || p.ID == req.ID
			}
			So(found, ShouldBeTrue)

			req.Status = model.DocumentCompleted
			So(docRepo.Update(ctx, req), ShouldBeNil)
			got, err := docRepo.FindByID(ctx, req.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, model.DocumentCompleted)

			_, err = docRepo.FindByID(ctx, "doc_missing")
			So(err, ShouldEqual, ErrNotFound)
		})

		Convey("消息按时间正序", func() {
			now := time.Now().Truncate(time.Millisecond)
			for i := 0; i < 3; i++ {
				So(msgRepo.Insert(ctx, &model.Message{
					ID:             id.Message(),
					ConversationID: convID,
					Role:           model.RoleUser,
					Content:        string(rune('a' + i)),
					StorageType:    model.StorageInline,
					Timestamp:      now.Add(time.Duration(i) * time.Second),
				}), ShouldBeNil)
			}

			msgs, err := msgRepo.ListByConversation(ctx, convID, 2)
			So(err, ShouldBeNil)
			So(msgs, ShouldHaveLength, 2)
			So(msgs[0].Content, ShouldEqual, "b")
			So(msgs[1].Content, ShouldEqual, "c")
		})
	})
}
