package dynamostore

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	. "github.com/smartystreets/goconvey/convey"

	"intellisurf/internal/model"
	"intellisurf/internal/repository"
)

// fakeTable 内存中的单表，只支持 Store 用到的表达式
type fakeTable struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	queryErr error
	queries  int
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(item map[string]types.AttributeValue) string {
	return stringAttr(item, "PK") + "|" + stringAttr(item, "SK")
}

func (f *fakeTable) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeTable) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := itemKey(in.Item)
	_, exists := f.items[k]
	if in.ConditionExpression != nil {
		switch cond := *in.ConditionExpression; {
		case strings.HasPrefix(cond, "attribute_not_exists") && exists:
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		case strings.HasPrefix(cond, "attribute_exists") && !exists:
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("missing")}
		}
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemKey(in.Key)]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("missing")}
	}
	values := in.ExpressionAttributeValues
	if archived, ok := values[":archived"]; ok {
		seen := values[":seen"].(*types.AttributeValueMemberS).Value
		if stringAttr(item, "status") != model.ConversationActive || stringAttr(item, "updated_at") != seen {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("changed")}
		}
		item["status"] = archived
		return &dynamodb.UpdateItemOutput{}, nil
	}

	count, _ := intAttr(item, "message_count")
	n, _ := strconv.Atoi(values[":n"].(*types.AttributeValueMemberN).Value)
	item["message_count"] = &types.AttributeValueMemberN{Value: strconv.Itoa(count + n)}
	item["updated_at"] = values[":now"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeTable) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	prefix := in.ExpressionAttributeValues[":prefix"].(*types.AttributeValueMemberS).Value
	var matched []map[string]types.AttributeValue
	for _, item := range f.items {
		if stringAttr(item, "PK") == pk && strings.HasPrefix(stringAttr(item, "SK"), prefix) {
			matched = append(matched, item)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return stringAttr(matched[i], "SK") > stringAttr(matched[j], "SK")
	})

	if in.ExclusiveStartKey != nil {
		start := stringAttr(in.ExclusiveStartKey, "SK")
		for i, item := range matched {
			if stringAttr(item, "SK") < start {
				matched = matched[i:]
				break
			}
			if i == len(matched)-1 {
				matched = nil
			}
		}
	}

	// 每页最多两条，用于覆盖分页
	pageSize := 2
	if in.Limit != nil && int(*in.Limit) < pageSize {
		pageSize = int(*in.Limit)
	}
	out := &dynamodb.QueryOutput{}
	if len(matched) > pageSize {
		out.Items = matched[:pageSize]
		last := out.Items[pageSize-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": last["PK"], "SK": last["SK"]}
	} else {
		out.Items = matched
	}
	return out, nil
}

// Scan 忽略过滤表达式返回全部记录，每页两条
func (f *fakeTable) Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		after := itemKey(in.ExclusiveStartKey)
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}

	out := &dynamodb.ScanOutput{}
	for i := start; i < len(keys) && len(out.Items) < 2; i++ {
		out.Items = append(out.Items, f.items[keys[i]])
	}
	if end := start + len(out.Items); end < len(keys) {
		last := out.Items[len(out.Items)-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": last["PK"], "SK": last["SK"]}
	}
	return out, nil
}

func TestNew(t *testing.T) {
	Convey("参数校验", t, func() {
		_, err := New(nil, "table")
		So(err, ShouldNotBeNil)
		_, err = New(newFakeTable(), " ")
		So(err, ShouldNotBeNil)
	})
}

func TestStore(t *testing.T) {
	Convey("DynamoDB 存储", t, func() {
		ctx := context.Background()
		table := newFakeTable()
		store, err := New(table, "intellisurf")
		So(err, ShouldBeNil)

		Convey("Ensure 只创建一次", func() {
			created, err := store.Ensure(ctx, &model.Conversation{ID: "conv_a", UserID: "u1", Title: "First", SessionID: "s1"})
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)

			created, err = store.Ensure(ctx, &model.Conversation{ID: "conv_a", UserID: "u1", Title: "Other"})
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)

			conv, err := store.FindByID(ctx, "conv_a")
			So(err, ShouldBeNil)
			So(conv.Title, ShouldEqual, "First")
			So(conv.SessionID, ShouldEqual, "s1")
			So(conv.Status, ShouldEqual, model.ConversationActive)
			So(conv.CreatedAt.IsZero(), ShouldBeFalse)
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

		Convey("消息按时间正序返回最近 N 条", func() {
			base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			for i := 1; i <= 5; i++ {
				id := "msg_" + strconv.Itoa(i)
				So(store.Insert(ctx, &model.Message{
					ID:             id,
					ConversationID: "conv_c",
					Role:           model.RoleUser,
					Content:        id,
					ContentSize:    len(id),
					StorageType:    model.StorageInline,
					Metadata:       model.MessageMetadata{Source: model.SourceADK, SessionID: "s1"},
					Timestamp:      base.Add(time.Duration(i) * time.Second),
				}), ShouldBeNil)
			}

			all, err := store.ListByConversation(ctx, "conv_c", 0)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 5)
			So(all[0].ID, ShouldEqual, "msg_1")
			So(all[4].ID, ShouldEqual, "msg_5")
			So(all[0].Metadata.Source, ShouldEqual, model.SourceADK)
			So(all[0].Timestamp.Equal(base.Add(time.Second)), ShouldBeTrue)

			last, err := store.ListByConversation(ctx, "conv_c", 3)
			So(err, ShouldBeNil)
			So(last, ShouldHaveLength, 3)
			So(last[0].ID, ShouldEqual, "msg_3")
			So(last[2].ID, ShouldEqual, "msg_5")
		})

		Convey("整秒与亚秒时间戳混合时仍按时间排序", func() {
			base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
			stamps := map[string]time.Time{
				"msg_a": base,
				"msg_b": base.Add(100 * time.Millisecond),
				"msg_c": base.Add(120 * time.Millisecond),
				"msg_d": base.Add(500 * time.Millisecond),
				"msg_e": base.Add(time.Second),
			}
			for _, id := range []string{"msg_d", "msg_a", "msg_e", "msg_c", "msg_b"} {
				So(store.Insert(ctx, &model.Message{
					ID:             id,
					ConversationID: "conv_ts",
					Role:           model.RoleUser,
					Content:        id,
					StorageType:    model.StorageInline,
					Timestamp:      stamps[id],
				}), ShouldBeNil)
			}

			So(msgSK(base, "msg_a"), ShouldBeLessThan, msgSK(base.Add(500*time.Millisecond), "msg_d"))
			So(msgSK(base.Add(100*time.Millisecond), "msg_b"), ShouldBeLessThan, msgSK(base.Add(120*time.Millisecond), "msg_c"))

			all, err := store.ListByConversation(ctx, "conv_ts", 0)
			So(err, ShouldBeNil)
			ids := make([]string, 0, len(all))
			for _, m := range all {
				ids = append(ids, m.ID)
			}
			So(ids, ShouldResemble, []string{"msg_a", "msg_b", "msg_c", "msg_d", "msg_e"})

			last, err := store.ListByConversation(ctx, "conv_ts", 2)
			So(err, ShouldBeNil)
			So(last, ShouldHaveLength, 2)
			So(last[0].ID, ShouldEqual, "msg_d")
			So(last[1].ID, ShouldEqual, "msg_e")
		})

		Convey("blob 消息保留 key 与预览", func() {
			So(store.Insert(ctx, &model.Message{
				ID:             "msg_blob",
				ConversationID: "conv_d",
				Role:           model.RoleAssistant,
				ContentURL:     "messages/conv_d/msg_blob.txt",
				ContentPreview: "preview...",
				ContentSize:    20000,
				StorageType:    model.StorageBlob,
			}), ShouldBeNil)

			msgs, err := store.ListByConversation(ctx, "conv_d", 10)
			So(err, ShouldBeNil)
			So(msgs, ShouldHaveLength, 1)
			So(msgs[0].IsBlob(), ShouldBeTrue)
			So(msgs[0].Content, ShouldBeEmpty)
			So(msgs[0].ContentURL, ShouldEqual, "messages/conv_d/msg_blob.txt")
			So(msgs[0].ContentSize, ShouldEqual, 20000)
		})

		Convey("没有消息的对话返回空列表", func() {
			msgs, err := store.ListByConversation(ctx, "conv_empty", 10)
			So(err, ShouldBeNil)
			So(msgs, ShouldNotBeNil)
			So(msgs, ShouldBeEmpty)
		})

		Convey("只归档超过期限的活跃对话", func() {
			old := time.Now().Add(-40 * 24 * time.Hour)
			_, err := store.Ensure(ctx, &model.Conversation{ID: "conv_old1", UserID: "u1", CreatedAt: old})
			So(err, ShouldBeNil)
			_, err = store.Ensure(ctx, &model.Conversation{ID: "conv_old2", UserID: "u1", CreatedAt: old.Add(time.Hour)})
			So(err, ShouldBeNil)
			_, err = store.Ensure(ctx, &model.Conversation{ID: "conv_old3", UserID: "u1", CreatedAt: old, Status: model.ConversationDeleted})
			So(err, ShouldBeNil)
			_, err = store.Ensure(ctx, &model.Conversation{ID: "conv_recent", UserID: "u1"})
			So(err, ShouldBeNil)
			So(store.Insert(ctx, &model.Message{ID: "msg_x", ConversationID: "conv_old1", Role: model.RoleUser, StorageType: model.StorageInline}), ShouldBeNil)

			cutoff := time.Now().Add(-30 * 24 * time.Hour)
			n, err := store.ArchiveBefore(ctx, cutoff)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			for id, want := range map[string]string{
				"conv_old1":   model.ConversationArchived,
				"conv_old2":   model.ConversationArchived,
				"conv_old3":   model.ConversationDeleted,
				"conv_recent": model.ConversationActive,
			} {
				conv, err := store.FindByID(ctx, id)
				So(err, ShouldBeNil)
				So(conv.Status, ShouldEqual, want)
			}

			n, err = store.ArchiveBefore(ctx, cutoff)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("查询失败时返回错误", func() {
			table.queryErr = errors.New("throttled")
			_, err := store.ListByConversation(ctx, "conv_c", 0)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "throttled")
		})
	})
}

func TestDocumentStore(t *testing.T) {
	Convey("DynamoDB 文档请求存储", t, func() {
		ctx := context.Background()
		table := newFakeTable()
		docs, err := NewDocumentStore(table, "intellisurf")
		So(err, ShouldBeNil)
		store, err := New(table, "intellisurf")
		So(err, ShouldBeNil)

		base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
		for i, id := range []string{"doc_3", "doc_1", "doc_2"} {
			created := base.Add(time.Duration(3-i) * time.Minute)
			if id == "doc_1" {
				created = base
			}
			So(docs.Create(ctx, &model.DocumentRequest{
				ID:           id,
				UserID:       "u1",
				DocumentType: "report",
				ContentURL:   "documents/u1/" + id + ".txt",
				Status:       model.DocumentPending,
				Metadata:     map[string]string{"format": "pdf"},
				CreatedAt:    created,
			}), ShouldBeNil)
		}
		// 同表中的对话记录不应出现在文档查询中
		_, err = store.Ensure(ctx, &model.Conversation{ID: "conv_a", UserID: "u1"})
		So(err, ShouldBeNil)

		Convey("读取完整记录", func() {
			req, err := docs.FindByID(ctx, "doc_1")
			So(err, ShouldBeNil)
			So(req.ContentURL, ShouldEqual, "documents/u1/doc_1.txt")
			So(req.Metadata["format"], ShouldEqual, "pdf")
			So(req.CreatedAt.Equal(base), ShouldBeTrue)
		})

		Convey("重复创建报错", func() {
			So(docs.Create(ctx, &model.DocumentRequest{ID: "doc_1"}), ShouldNotBeNil)
		})

		Convey("待处理请求跨页扫描并按创建时间排序", func() {
			req, err := docs.FindByID(ctx, "doc_2")
			So(err, ShouldBeNil)
			req.Status = model.DocumentInProgress
			So(docs.Update(ctx, req), ShouldBeNil)

			pending, err := docs.ListPending(ctx, 0)
			So(err, ShouldBeNil)
			So(pending, ShouldHaveLength, 2)
			So(pending[0].ID, ShouldEqual, "doc_1")
			So(pending[1].ID, ShouldEqual, "doc_3")

			limited, err := docs.ListPending(ctx, 1)
			So(err, ShouldBeNil)
			So(limited, ShouldHaveLength, 1)
			So(limited[0].ID, ShouldEqual, "doc_1")
		})

		Convey("不存在的请求返回 ErrNotFound", func() {
			_, err := docs.FindByID(ctx, "doc_missing")
			So(err, ShouldEqual, repository.ErrNotFound)
			So(docs.Update(ctx, &model.DocumentRequest{ID: "doc_missing"}), ShouldEqual, repository.ErrNotFound)
		})
	})
}
