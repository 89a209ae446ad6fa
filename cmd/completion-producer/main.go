package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/tile-leaderboard/internal/domain"
	"github.com/tile-leaderboard/internal/kafka"
	"github.com/tile-leaderboard/internal/seed"
)

// randomSubmission picks a demo competitor and tile. Duplicates are expected
// and are skipped by the consumer.
func randomSubmission(rng *rand.Rand, backdate time.Duration) domain.CompletionSubmission {
	member := seed.Members[rng.IntN(len(seed.Members))]
	sub := domain.CompletionSubmission{
		RSN:    member.RSN,
		TileID: int64(rng.IntN(len(seed.Tiles)) + 1),
	}
	if backdate > 0 {
		at := time.Now().UTC().Add(-time.Duration(rng.Int64N(int64(backdate))))
		sub.CompletedAt = &at
	}
	return sub
}

// maxRate keeps the tick interval at a millisecond or more
const maxRate = 1000

// tickInterval converts a per-second rate into the producer's tick period
func tickInterval(rate int) (time.Duration, error) {
	if rate <= 0 || rate > maxRate {
		return 0, fmt.Errorf("rate must be between 1 and %d, got %d", maxRate, rate)
	}
	return time.Second / time.Duration(rate), nil
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "tile-completions", "Kafka topic")
	rate := flag.Int("rate", 5, "Completions per second")
	count := flag.Int("count", 0, "Number of completions to send (0 = until stopped)")
	backdate := flag.Duration("backdate", 0, "Spread completion times over this window before now (0 = server time)")
	flag.Parse()

	interval, err := tickInterval(*rate)
	if err != nil {
		log.Fatal(err)
	}
	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Tile completion producer")
	fmt.Printf("  Brokers:     %s\n", *brokers)
	fmt.Printf("  Topic:       %s\n", *topic)
	fmt.Printf("  Rate:        %d/sec\n", *rate)
	fmt.Printf("  Competitors: %d, tiles: %d\n", len(seed.Members), len(seed.Tiles))
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func(reason string) {
		fmt.Printf("\n%s\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	var sent int

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case <-ticker.C:
			if *count > 0 && sent >= *count {
				shutdown("Count reached, shutting down...")
				return
			}

			sub := randomSubmission(rng, *backdate)
			data, err := kafka.EncodeCompletion(sub)
			if err != nil {
				log.Printf("Failed to encode message: %v", err)
				continue
			}
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(sub.RSN),
				Value: sarama.ByteEncoder(data),
			}
			sent++

		case <-statsTicker.C:
			fmt.Printf("[%s] Produced: %d | Acked: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				sent,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
