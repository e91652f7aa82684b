package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stratlab/internal/logger"
	"stratlab/internal/market"

	_ "modernc.org/sqlite"
)

const metadataFile = "cache_metadata.json"

// ErrEntryExists 表示同 key 的缓存已存在；条目只写一次，替换需先显式删除。
var ErrEntryExists = errors.New("dataset: cache entry already exists")

// Entry 是单个缓存数据集的元信息。metadata 索引是存在性的唯一事实来源：
// 不在索引中的 key 即视为 miss，哪怕磁盘上残留 payload 文件。
type Entry struct {
	Key       string        `json:"key"`
	Symbol    string        `json:"symbol"`
	Interval  string        `json:"interval"`
	StartDate string        `json:"start_date"`
	EndDate   string        `json:"end_date"`
	Rows      int64         `json:"rows"`
	Columns   int           `json:"columns"`
	Schema    market.Schema `json:"schema"`
	SizeKB    float64       `json:"size_kb"`
	CreatedAt time.Time     `json:"created_at"`
}

// Cache 把 OHLCV 页缓存落盘：每个 key 一个 SQLite payload 文件，
// 外加单一 JSON 元数据索引。
type Cache struct {
	root string

	mu   sync.RWMutex
	meta map[string]Entry
}

// Open 打开（或初始化）root 目录下的缓存。损坏的索引按空索引处理。
func Open(root string) (*Cache, error) {
	if root == "" {
		return nil, fmt.Errorf("dataset: cache root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	c := &Cache{root: root, meta: make(map[string]Entry)}
	raw, err := os.ReadFile(filepath.Join(root, metadataFile))
	if err == nil {
		if err := json.Unmarshal(raw, &c.meta); err != nil {
			logger.Warnf("[dataset] 元数据索引损坏，按空缓存处理: %v", err)
			c.meta = make(map[string]Entry)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return c, nil
}

// Key 生成确定性缓存键：{SYMBOL}_{interval}_{ddmmyy}_until_{ddmmyy}。
func Key(symbol, interval string, start, end time.Time) string {
	return fmt.Sprintf("%s_%s_%s_until_%s", symbol, interval,
		start.UTC().Format("020106"), end.UTC().Format("020106"))
}

// Get 返回缓存行；miss 时第二个返回值为 false，绝不把 miss 伪装成空结果。
// payload 损坏按 miss 处理（上层回退到网络拉取）。
func (c *Cache) Get(symbol, interval string, start, end time.Time) ([][]string, bool) {
	key := Key(symbol, interval, start, end)
	c.mu.RLock()
	entry, ok := c.meta[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	candles, err := c.readPayload(key)
	if err != nil {
		logger.Warnf("[dataset] 读取缓存 %s 失败，按 miss 处理: %v", key, err)
		return nil, false
	}
	return market.EncodeRows(entry.Schema, candles), true
}

// GetCandles 同 Get，但直接返回解析后的 Candles 与 schema 标签。
func (c *Cache) GetCandles(symbol, interval string, start, end time.Time) (market.Candles, market.Schema, bool) {
	key := Key(symbol, interval, start, end)
	c.mu.RLock()
	entry, ok := c.meta[key]
	c.mu.RUnlock()
	if !ok {
		return nil, "", false
	}
	candles, err := c.readPayload(key)
	if err != nil {
		logger.Warnf("[dataset] 读取缓存 %s 失败，按 miss 处理: %v", key, err)
		return nil, "", false
	}
	return candles, entry.Schema, true
}

// Save 持久化一页数据。schema 由首行列数探测并记入元数据，
// 读取端据此还原行形态（6 列基础 / 12 列扩展的读写契约）。
func (c *Cache) Save(symbol, interval string, start, end time.Time, rows [][]string) error {
	if len(rows) == 0 {
		return fmt.Errorf("dataset: 拒绝缓存空数据集 %s %s", symbol, interval)
	}
	schema, err := market.SchemaForArity(len(rows[0]))
	if err != nil {
		return err
	}
	candles, err := market.DecodeRows(schema, rows)
	if err != nil {
		return fmt.Errorf("dataset: 行解析失败: %w", err)
	}
	key := Key(symbol, interval, start, end)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.meta[key]; ok {
		return fmt.Errorf("%w: %s", ErrEntryExists, key)
	}
	path := c.payloadPath(key)
	if err := writePayload(path, candles); err != nil {
		_ = os.Remove(path)
		return err
	}
	sizeKB := 0.0
	if st, err := os.Stat(path); err == nil {
		sizeKB = float64(st.Size()) / 1024
	}
	c.meta[key] = Entry{
		Key:       key,
		Symbol:    symbol,
		Interval:  interval,
		StartDate: start.UTC().Format("2006-01-02"),
		EndDate:   end.UTC().Format("2006-01-02"),
		Rows:      int64(len(rows)),
		Columns:   schema.Columns(),
		Schema:    schema,
		SizeKB:    sizeKB,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.flushMetaLocked(); err != nil {
		delete(c.meta, key)
		_ = os.Remove(path)
		return err
	}
	logger.Infof("[dataset] 缓存写入 %s（%d 行，%d 列）", key, len(rows), schema.Columns())
	return nil
}

// Delete 移除指定 key 的 payload 与元数据。
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.meta[key]; !ok {
		return false
	}
	delete(c.meta, key)
	_ = os.Remove(c.payloadPath(key))
	if err := c.flushMetaLocked(); err != nil {
		logger.Warnf("[dataset] 删除 %s 后写索引失败: %v", key, err)
	}
	return true
}

// List 返回全部缓存条目（按 key 无序副本）。
func (c *Cache) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.meta))
	for _, e := range c.meta {
		out = append(out, e)
	}
	return out
}

// ClearAll 清空整个缓存。
func (c *Cache) ClearAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.meta {
		_ = os.Remove(c.payloadPath(key))
		delete(c.meta, key)
	}
	return c.flushMetaLocked()
}

func (c *Cache) payloadPath(key string) string {
	return filepath.Join(c.root, key+".db")
}

func (c *Cache) flushMetaLocked() error {
	raw, err := json.MarshalIndent(c.meta, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(c.root, metadataFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *Cache) readPayload(key string) (market.Candles, error) {
	db, err := openPayload(c.payloadPath(key))
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.Query(`
		SELECT open_time, open, high, low, close, volume,
		       close_time, quote_volume, trades, taker_buy_base, taker_buy_quote
		FROM rows ORDER BY open_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out market.Candles
	for rows.Next() {
		var cd market.Candle
		if err := rows.Scan(&cd.OpenTime, &cd.Open, &cd.High, &cd.Low, &cd.Close, &cd.Volume,
			&cd.CloseTime, &cd.QuoteVolume, &cd.Trades, &cd.TakerBuyBase, &cd.TakerBuyQuote); err != nil {
			return nil, err
		}
		out = append(out, cd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("payload %s 为空", key)
	}
	return out, nil
}

func openPayload(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

func writePayload(path string, candles market.Candles) error {
	db, err := openPayload(path)
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS rows (
		open_time       INTEGER PRIMARY KEY,
		open            REAL NOT NULL,
		high            REAL NOT NULL,
		low             REAL NOT NULL,
		close           REAL NOT NULL,
		volume          REAL NOT NULL,
		close_time      INTEGER DEFAULT 0,
		quote_volume    REAL DEFAULT 0,
		trades          INTEGER DEFAULT 0,
		taker_buy_base  REAL DEFAULT 0,
		taker_buy_quote REAL DEFAULT 0
	)`); err != nil {
		return err
	}
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rows (open_time, open, high, low, close, volume,
		                  close_time, quote_volume, trades, taker_buy_base, taker_buy_quote)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(open_time) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, cd := range candles {
		if _, err := stmt.ExecContext(ctx, cd.OpenTime, cd.Open, cd.High, cd.Low, cd.Close, cd.Volume,
			cd.CloseTime, cd.QuoteVolume, cd.Trades, cd.TakerBuyBase, cd.TakerBuyQuote); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
