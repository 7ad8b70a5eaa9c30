package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/wwwzy/CareCompanion/internal/storage"
	"gorm.io/gorm"
)

func main() {
	path := flag.String("db", "carecompanion.db", "sqlite 数据库路径")
	flag.Parse()

	// Connect to the database
	db, err := gorm.Open(sqlite.Open(*path), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	fmt.Println("--- Verifying CareCompanion Database ---")

	// 表不存在说明还没有运行过迁移
	if !db.Migrator().HasTable(&storage.AgentEvent{}) {
		fmt.Println("Table 'agent_events' does not exist yet.")
		return
	}

	var total int64
	db.Model(&storage.AgentEvent{}).Count(&total)
	fmt.Printf("Total Agent Events: %d\n", total)

	type toolCount struct {
		Agent string
		Tool  string
		N     int64
	}
	var counts []toolCount
	db.Model(&storage.AgentEvent{}).
		Select("agent, tool, COUNT(*) AS n").
		Group("agent, tool").
		Order("n DESC").
		Scan(&counts)
	for _, c := range counts {
		fmt.Printf("  %-13s %-22s %d\n", c.Agent, c.Tool, c.N)
	}

	if total > 0 {
		var events []storage.AgentEvent
		db.Order("created_at desc").Limit(5).Find(&events)
		fmt.Println("\nLatest 5 Events (Local Time):")
		for _, ev := range events {
			args := ev.ArgsJSON
			if len(args) > 60 {
				args = args[:57] + "..."
			}
			fmt.Printf("  [%s] %s %s/%s %s\n",
				ev.CreatedAt.Local().Format("2006-01-02 15:04:05"), ev.SessionID, ev.Agent, ev.Tool, args)
		}
	}
}
