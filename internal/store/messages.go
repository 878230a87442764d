// Package store 读取后端进程持久化的会话消息。
//
// 只读: 后端负责写入与 schema, 宿主只拉取全量快照用于
// 会话水合与快照刷新。裸写 SQL, 不使用 ORM。
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentbridge/go-agent-bridge/internal/transcript"
	"github.com/agentbridge/go-agent-bridge/pkg/logger"
)

// MessageRecord session_messages 表的一行。
type MessageRecord struct {
	ID        int64           `db:"id" json:"id"`
	SessionID string          `db:"session_id" json:"sessionId"`
	Role      string          `db:"role" json:"role"` // user | assistant | system | error
	Content   string          `db:"content" json:"content"`
	Blocks    json.RawMessage `db:"blocks" json:"blocks,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// MessageStore session_messages 只读存储。
type MessageStore struct {
	pool         *pgxpool.Pool
	historyLimit int
}

// NewMessageStore 创建。historyLimit 限制单次水合的消息条数。
func NewMessageStore(pool *pgxpool.Pool, historyLimit int) *MessageStore {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &MessageStore{pool: pool, historyLimit: historyLimit}
}

const msgCols = "id, session_id, role, content, blocks, created_at"

// ListBySession 返回会话最近 limit 条消息, 按时间升序。
func (s *MessageStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = s.historyLimit
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+msgCols+" FROM session_messages WHERE session_id=$1 ORDER BY id DESC LIMIT $2",
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[MessageRecord])
	if err != nil {
		return nil, err
	}
	// 查询按 id 降序取最近 N 条, 转录要求升序
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// CountBySession 统计会话消息总数。
func (s *MessageStore) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM session_messages WHERE session_id=$1", sessionID).Scan(&count)
	return count, err
}

// LoadHistory 实现 session.HistoryLoader: 水合用的转录快照。
func (s *MessageStore) LoadHistory(ctx context.Context, sessionID string) ([]transcript.Message, error) {
	records, err := s.ListBySession(ctx, sessionID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	return ToTranscript(records), nil
}

// ToTranscript 将数据库记录转换为转录消息。
//
// blocks 列解析失败不丢消息 — 退化为纯文本, 留日志定位。
func ToTranscript(records []MessageRecord) []transcript.Message {
	msgs := make([]transcript.Message, 0, len(records))
	for _, rec := range records {
		msg := transcript.Message{
			Role:      parseRole(rec.Role),
			Text:      rec.Content,
			Timestamp: rec.CreatedAt,
		}
		if len(rec.Blocks) > 0 {
			var blocks transcript.BlockList
			if err := json.Unmarshal(rec.Blocks, &blocks); err != nil {
				logger.Warn("store: unparseable blocks column, keeping text only",
					logger.FieldSessionID, rec.SessionID,
					logger.FieldID, rec.ID,
					logger.FieldError, err,
				)
			} else {
				msg.Blocks = blocks
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func parseRole(role string) transcript.Role {
	switch role {
	case "user":
		return transcript.RoleUser
	case "assistant":
		return transcript.RoleAssistant
	case "system":
		return transcript.RoleSystem
	case "error":
		return transcript.RoleError
	default:
		return transcript.RoleSystem
	}
}
