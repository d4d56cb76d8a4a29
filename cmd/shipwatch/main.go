package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"shipwatch/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := RunWorker(ctx, cfg, defaultWorkerFactories(), nil); err != nil && err != context.Canceled {
		panic(err)
	}
}
