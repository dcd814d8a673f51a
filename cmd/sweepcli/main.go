package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
)

// sweepcli triggers an out-of-band escalation sweep and reports the result of
// the most recent one. It talks only to the job queue; the worker does the
// actual scanning.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: sweepcli run|status")
		return
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	switch os.Args[1] {
	case "run":
		jb, _ := json.Marshal(struct {
			Type string `json:"type"`
		}{"escalate"})
		if err := rdb.RPush(ctx, "jobs", jb).Err(); err != nil {
			fmt.Println("error:", err)
			os.Exit(1)
		}
		fmt.Println("sweep enqueued")
	case "status":
		val, err := rdb.Get(ctx, "escalation:last_scan").Result()
		if err == redis.Nil {
			fmt.Println("no sweep recorded yet")
			return
		}
		if err != nil {
			fmt.Println("error:", err)
			os.Exit(1)
		}
		fmt.Println(val)
	default:
		fmt.Println("unknown command")
	}
}
