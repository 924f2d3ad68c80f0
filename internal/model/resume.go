package model

import (
	"encoding/json"
	"time"
)

// Resume はアップロードされた履歴書ファイルのメタデータを表す。
// ファイル本体はオブジェクトストレージのObjectKeyに格納される。
type Resume struct {
	ID          string
	UserID      string
	FileName    string
	ContentType string
	SizeBytes   int64
	ObjectKey   string
	CreatedAt   time.Time
}

// KVEntry はユーザー単位のキーバリューエントリを表す。
type KVEntry struct {
	UserID    string
	Key       string
	Value     json.RawMessage
	UpdatedAt time.Time
}
