package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	roomPlaybackKey = "karaoke:room:%s:playback"    // Hash: 播放位置
	roomPresenceKey = "karaoke:room:%s:presence:%s" // String: 观众心跳 key (roomID:clientID)
	roomPresenceSet = "karaoke:room:%s:viewers"     // Set: 在线观众集合
	roomTTL         = 24 * time.Hour
	presenceTTL     = 60 * time.Second // 心跳过期时间 60秒
)

// PlaybackSnapshot is the last reported playback position of a room.
type PlaybackSnapshot struct {
	Time      float64   `json:"time"`
	Ended     bool      `json:"ended"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RoomCache 卡拉OK房间的在线观众与播放位置
type RoomCache struct {
	client *redis.Client
}

// NewRoomCache 创建房间缓存；client 为 nil 时使用全局客户端
func NewRoomCache(client *redis.Client) *RoomCache {
	if client == nil {
		client = RedisClient
	}
	return &RoomCache{client: client}
}

// ========== 心跳在线状态管理 ==========

// UpdatePresence 更新观众心跳
func (c *RoomCache) UpdatePresence(ctx context.Context, roomID, clientID string) error {
	if c.client == nil {
		return errNoClient
	}

	presenceKey := fmt.Sprintf(roomPresenceKey, roomID, clientID)
	onlineSetKey := fmt.Sprintf(roomPresenceSet, roomID)

	pipe := c.client.Pipeline()
	pipe.Set(ctx, presenceKey, time.Now().UnixMilli(), presenceTTL)
	pipe.SAdd(ctx, onlineSetKey, clientID)
	pipe.Expire(ctx, onlineSetKey, roomTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RemovePresence 移除观众在线状态
func (c *RoomCache) RemovePresence(ctx context.Context, roomID, clientID string) error {
	if c.client == nil {
		return errNoClient
	}

	pipe := c.client.Pipeline()
	pipe.Del(ctx, fmt.Sprintf(roomPresenceKey, roomID, clientID))
	pipe.SRem(ctx, fmt.Sprintf(roomPresenceSet, roomID), clientID)
	_, err := pipe.Exec(ctx)
	return err
}

// ActiveViewerCount 获取活跃观众数（基于心跳），顺带清理过期成员
func (c *RoomCache) ActiveViewerCount(ctx context.Context, roomID string) (int64, error) {
	if c.client == nil {
		return 0, errNoClient
	}

	onlineSetKey := fmt.Sprintf(roomPresenceSet, roomID)
	members, err := c.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return 0, err
	}

	var active int64
	expired := make([]interface{}, 0)
	for _, id := range members {
		exists, err := c.client.Exists(ctx, fmt.Sprintf(roomPresenceKey, roomID, id)).Result()
		if err != nil {
			continue
		}
		if exists > 0 {
			active++
		} else {
			expired = append(expired, id)
		}
	}
	if len(expired) > 0 {
		c.client.SRem(ctx, onlineSetKey, expired...)
	}
	return active, nil
}

// ========== 播放位置 ==========

// SetPlayback 记录房间最新播放位置
func (c *RoomCache) SetPlayback(ctx context.Context, roomID string, t float64, ended bool) error {
	if c.client == nil {
		return errNoClient
	}

	key := fmt.Sprintf(roomPlaybackKey, roomID)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"time":       strconv.FormatFloat(t, 'f', -1, 64),
		"ended":      strconv.FormatBool(ended),
		"updated_at": time.Now().UnixMilli(),
	})
	pipe.Expire(ctx, key, roomTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetPlayback 获取房间播放位置，不存在时返回 nil
func (c *RoomCache) GetPlayback(ctx context.Context, roomID string) (*PlaybackSnapshot, error) {
	if c.client == nil {
		return nil, errNoClient
	}

	result, err := c.client.HGetAll(ctx, fmt.Sprintf(roomPlaybackKey, roomID)).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	snap := &PlaybackSnapshot{}
	if v, ok := result["time"]; ok {
		snap.Time, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := result["ended"]; ok {
		snap.Ended, _ = strconv.ParseBool(v)
	}
	if v, ok := result["updated_at"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			snap.UpdatedAt = time.UnixMilli(ms)
		}
	}
	return snap, nil
}

// ClearRoom 删除房间的播放位置与在线集合
func (c *RoomCache) ClearRoom(ctx context.Context, roomID string) error {
	if c.client == nil {
		return errNoClient
	}
	return c.client.Del(ctx,
		fmt.Sprintf(roomPlaybackKey, roomID),
		fmt.Sprintf(roomPresenceSet, roomID),
	).Err()
}
