package model_test

import (
	"encoding/json"
	"testing"

	"github.com/MrSnakeDoc/linkpocket/internal/model"
)

func raw(t *testing.T, fields map[string]any) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", k, err)
		}
		out[k] = data
	}
	return out
}

func TestDecodeLink_AppliesDefaults(t *testing.T) {
	l, err := model.DecodeLink("k1", raw(t, map[string]any{
		"url":       "https://example.org",
		"timestamp": 100,
	}))
	if err != nil {
		t.Fatalf("DecodeLink: %v", err)
	}

	if l.Key != "k1" {
		t.Errorf("Key = %q, want k1", l.Key)
	}
	if l.Category != model.CategoryWeb {
		t.Errorf("Category = %q, want web", l.Category)
	}
	if l.Type != model.TypeWeb {
		t.Errorf("Type = %q, want web", l.Type)
	}
	if l.IsFavorite || l.IsRead {
		t.Error("flags should default to false")
	}
	if !l.Unclassified() {
		t.Error("link without folderId should be unclassified")
	}
}

func TestDecodeLink_NullFolderIsUnclassified(t *testing.T) {
	l, err := model.DecodeLink("k1", map[string]json.RawMessage{
		"url":      json.RawMessage(`"https://example.org"`),
		"folderId": json.RawMessage(`null`),
	})
	if err != nil {
		t.Fatalf("DecodeLink: %v", err)
	}
	if l.FolderID != nil {
		t.Errorf("FolderID = %v, want nil", *l.FolderID)
	}
}

func TestDecodeLink_RejectsWrongTypes(t *testing.T) {
	_, err := model.DecodeLink("bad", map[string]json.RawMessage{
		"timestamp": json.RawMessage(`"yesterday"`),
	})
	if err == nil {
		t.Fatal("expected error for string timestamp")
	}
}

func TestDecodeFolder_MissingOrder(t *testing.T) {
	f, err := model.DecodeFolder("f1", raw(t, map[string]any{"name": "Work", "timestamp": 5}))
	if err != nil {
		t.Fatalf("DecodeFolder: %v", err)
	}
	if f.HasOrder() {
		t.Error("legacy folder should have no order")
	}
	if got := f.OrderOr(-1); got != -1 {
		t.Errorf("OrderOr(-1) = %d, want -1", got)
	}
}

func TestLinkFields_OmitsEmptyOptionals(t *testing.T) {
	l := model.Link{URL: "https://a.com", Category: model.CategoryWeb, Type: model.TypeWeb, Timestamp: 1, Title: "A"}
	fields := l.Fields()

	if _, ok := fields[model.FieldTitle]; !ok {
		t.Error("title should be present")
	}
	for _, k := range []string{model.FieldDesc, model.FieldImage, model.FieldVideoID, model.FieldPublisher, model.FieldFolderID} {
		if _, ok := fields[k]; ok {
			t.Errorf("field %s should be omitted", k)
		}
	}
	if fields[model.FieldIsRead] != false {
		t.Error("isRead should be written explicitly")
	}
}

func TestDefaultFolders(t *testing.T) {
	folders := model.DefaultFolders([2]string{"Folder 1", "Folder 2"}, 1000)
	if len(folders) != 2 {
		t.Fatalf("got %d folders, want 2", len(folders))
	}
	if folders[0].Key != model.DefaultFolderKey1 || folders[1].Key != model.DefaultFolderKey2 {
		t.Errorf("unexpected keys %q, %q", folders[0].Key, folders[1].Key)
	}
	if folders[0].OrderOr(-1) != 0 || folders[1].OrderOr(-1) != 1 {
		t.Error("default folders should have orders 0 and 1")
	}
	if folders[1].Timestamp != folders[0].Timestamp+1 {
		t.Error("default folder timestamps should be sequential")
	}
}

func TestParseCategory(t *testing.T) {
	if c, ok := model.ParseCategory("news"); !ok || c != model.CategoryNews {
		t.Errorf("ParseCategory(news) = %q, %v", c, ok)
	}
	if _, ok := model.ParseCategory("podcast"); ok {
		t.Error("ParseCategory(podcast) should fail")
	}
}
