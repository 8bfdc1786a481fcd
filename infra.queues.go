package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// OutboxQueue holds composed notification mails awaiting delivery.
const OutboxQueue = "mails.outbox"

// Ensure *redisQueue implements Queuer.
var _ Queuer = (*redisQueue)(nil)

// Queuer describes a mails queue.
type Queuer interface {
	Push(ctx context.Context, qid string, mail Mail) error
	Pop(ctx context.Context, qids ...string) (string, Mail, error)
}

// redisQueue represents a queue which implements the Queuer interface.
type redisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) Queuer {
	return &redisQueue{client: client}
}

// Push enqueues a mail onto the queue identified by qid.
func (q *redisQueue) Push(ctx context.Context, qid string, mail Mail) error {
	mailBytes, err := jsonCodec.Marshal(mail)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, qid, mailBytes).Err()
}

// Pop returns the first dequeued mail from the list of queue ids.
func (q *redisQueue) Pop(ctx context.Context, qids ...string) (string, Mail, error) {
	var mail Mail
	var qid string
	infos, err := q.client.BLPop(ctx, 0*time.Second, qids...).Result()
	if err != nil {
		return qid, mail, err
	}

	if err = jsonCodec.Unmarshal([]byte(infos[1]), &mail); err != nil {
		return qid, mail, err
	}
	qid = infos[0]
	return qid, mail, nil
}

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Redis.Host + ":" + config.Redis.Port,
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,
	})

	// test connection.
	if pong, err := client.Ping(context.Background()).Result(); pong != "PONG" || err != nil {
		return client, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}
