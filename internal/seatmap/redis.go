package seatmap

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "seatmap:"
	heldPrefix    = "held:"
	bookedPrefix  = "booked:"
	errMismatch   = "token mismatch"
	errBadState   = "invalid state"
	scanBatchSize = 500
)

// One hash per show holds every occupied seat. A script runs atomically on
// the hash, which gives per-show serialization without a client-side lock.
var tryHoldScript = redis.NewScript(`
	-- KEYS[1] = seat map hash of the show
	-- ARGV[1] = token, ARGV[2] = hold expiry in unix ms, ARGV[3..] = seat labels

	local conflicts = {}
	for i = 3, #ARGV do
		if redis.call("HEXISTS", KEYS[1], ARGV[i]) == 1 then
			table.insert(conflicts, ARGV[i])
		end
	end

	if #conflicts > 0 then
		return conflicts
	end

	for i = 3, #ARGV do
		redis.call("HSET", KEYS[1], ARGV[i], "held:" .. ARGV[1] .. ":" .. ARGV[2])
	end

	return {}
`)

var releaseScript = redis.NewScript(`
	-- KEYS[1] = seat map hash of the show
	-- ARGV[1] = token, ARGV[2..] = seat labels

	local prefix = "held:" .. ARGV[1] .. ":"
	for i = 2, #ARGV do
		local v = redis.call("HGET", KEYS[1], ARGV[i])
		if not v or string.sub(v, 1, #prefix) ~= prefix then
			return redis.error_reply("token mismatch " .. ARGV[i])
		end
	end

	for i = 2, #ARGV do
		redis.call("HDEL", KEYS[1], ARGV[i])
	end

	return "OK"
`)

var commitScript = redis.NewScript(`
	-- KEYS[1] = seat map hash of the show
	-- ARGV[1] = token, ARGV[2..] = seat labels

	local held = "held:" .. ARGV[1] .. ":"
	local booked = "booked:" .. ARGV[1]

	for i = 2, #ARGV do
		local v = redis.call("HGET", KEYS[1], ARGV[i])
		if not v then
			return redis.error_reply("invalid state " .. ARGV[i])
		end
		if v ~= booked and string.sub(v, 1, #held) ~= held then
			if string.sub(v, 1, 5) == "held:" then
				return redis.error_reply("token mismatch " .. ARGV[i])
			end
			return redis.error_reply("invalid state " .. ARGV[i])
		end
	end

	for i = 2, #ARGV do
		redis.call("HSET", KEYS[1], ARGV[i], booked)
	end

	return "OK"
`)

type RedisSeatMap struct {
	redis redis.UniversalClient
}

func NewRedisSeatMap(client redis.UniversalClient) *RedisSeatMap {
	return &RedisSeatMap{
		redis: client,
	}
}

func seatMapKey(showID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, showID)
}

func seatArgs(seats []domain.SeatID, head ...any) []any {
	args := make([]any, 0, len(head)+len(seats))
	args = append(args, head...)

	for _, id := range domain.SortSeats(seats) {
		args = append(args, id.String())
	}

	return args
}

func (m *RedisSeatMap) TryHold(
	ctx context.Context,
	showID int64,
	seats []domain.SeatID,
	token string,
	expiresAt time.Time) error {

	args := seatArgs(seats, token, expiresAt.UnixMilli())

	taken, err := tryHoldScript.Run(ctx, m.redis, []string{seatMapKey(showID)}, args...).StringSlice()
	if err != nil {
		return fmt.Errorf("failed to run tryHold script: %w", err)
	}

	if len(taken) == 0 {
		return nil
	}

	conflicts := make([]domain.SeatID, 0, len(taken))
	for _, label := range taken {
		id, err := domain.ParseSeatID(label)
		if err != nil {
			return err
		}
		conflicts = append(conflicts, id)
	}

	return &domain.SeatUnavailableError{Seats: conflicts}
}

func (m *RedisSeatMap) Release(ctx context.Context, showID int64, seats []domain.SeatID, token string) error {
	err := releaseScript.Run(ctx, m.redis, []string{seatMapKey(showID)}, seatArgs(seats, token)...).Err()

	return scriptError("release", err)
}

func (m *RedisSeatMap) Commit(ctx context.Context, showID int64, seats []domain.SeatID, token string) error {
	err := commitScript.Run(ctx, m.redis, []string{seatMapKey(showID)}, seatArgs(seats, token)...).Err()

	return scriptError("commit", err)
}

func scriptError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case redis.HasErrorPrefix(err, errMismatch):
		return fmt.Errorf("%s: %s: %w", op, err, domain.ErrTokenMismatch)
	case redis.HasErrorPrefix(err, errBadState):
		return fmt.Errorf("%s: %s: %w", op, err, domain.ErrInvalidState)
	default:
		return fmt.Errorf("failed to run %s script: %w", op, err)
	}
}

func (m *RedisSeatMap) Seats(ctx context.Context, showID int64) (map[domain.SeatID]domain.Seat, error) {
	entries, err := m.redis.HGetAll(ctx, seatMapKey(showID)).Result()
	if err != nil {
		return nil, err
	}

	seats := make(map[domain.SeatID]domain.Seat, len(entries))
	for label, value := range entries {
		seat, err := decodeSeat(showID, label, value)
		if err != nil {
			return nil, err
		}
		seats[seat.ID] = seat
	}

	return seats, nil
}

func encodeSeat(seat domain.Seat) string {
	if seat.State == domain.SeatBooked {
		return bookedPrefix + seat.Token
	}

	return fmt.Sprintf("%s%s:%d", heldPrefix, seat.Token, seat.ExpiresAt.UnixMilli())
}

func decodeSeat(showID int64, label, value string) (domain.Seat, error) {
	id, err := domain.ParseSeatID(label)
	if err != nil {
		return domain.Seat{}, err
	}

	seat := domain.Seat{ShowID: showID, ID: id}

	switch {
	case strings.HasPrefix(value, bookedPrefix):
		seat.State = domain.SeatBooked
		seat.Token = strings.TrimPrefix(value, bookedPrefix)
	case strings.HasPrefix(value, heldPrefix):
		parts := strings.SplitN(strings.TrimPrefix(value, heldPrefix), ":", 2)
		if len(parts) != 2 {
			return domain.Seat{}, fmt.Errorf("malformed seat entry %q for %s", value, label)
		}

		ms, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return domain.Seat{}, fmt.Errorf("malformed hold expiry %q for %s", value, label)
		}

		seat.State = domain.SeatHeld
		seat.Token = parts[0]
		seat.ExpiresAt = time.UnixMilli(ms).UTC()
	default:
		return domain.Seat{}, fmt.Errorf("unknown seat entry %q for %s", value, label)
	}

	return seat, nil
}

func (m *RedisSeatMap) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string

	iter := m.redis.Scan(ctx, 0, keyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan seat maps: %w", err)
	}

	return keys, nil
}

// Shows relies on Redis deleting a hash together with its last field.
func (m *RedisSeatMap) Shows(ctx context.Context) ([]int64, error) {
	keys, err := m.scanKeys(ctx)
	if err != nil {
		return nil, err
	}

	shows := make([]int64, 0, len(keys))
	for _, key := range keys {
		showID, err := strconv.ParseInt(strings.TrimPrefix(key, keyPrefix), 10, 64)
		if err != nil {
			continue
		}
		shows = append(shows, showID)
	}

	slices.Sort(shows)

	return slices.Compact(shows), nil
}

// Load drops every existing seat map hash and writes seats in one
// transaction pipeline.
func (m *RedisSeatMap) Load(ctx context.Context, seats []domain.Seat) error {
	keys, err := m.scanKeys(ctx)
	if err != nil {
		return err
	}

	pipe := m.redis.TxPipeline()

	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}

	for _, seat := range seats {
		pipe.HSet(ctx, seatMapKey(seat.ShowID), seat.ID.String(), encodeSeat(seat))
	}

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to load seat maps: %w", err)
	}

	return nil
}
