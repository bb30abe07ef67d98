package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	v1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
)

// walker carries the random-walk state for one symbol.
type walker struct {
	symbol    string
	price     float64
	volume24h float64
	dayOpen   float64
}

// step advances the walk and returns the next tick. Prices drift within
// ±spread of the current price and never go non-positive.
func (w *walker) step(spread float64, now time.Time) v1.Tick {
	delta := (rand.Float64() - 0.5) * 2 * spread * w.price
	next := w.price + delta
	if next <= 0 {
		next = w.price
	}
	w.price = next

	tradeVolume := 0.001 + rand.Float64()*0.25
	w.volume24h += tradeVolume

	change := "EVEN"
	switch {
	case w.price > w.dayOpen:
		change = "RISE"
	case w.price < w.dayOpen:
		change = "FALL"
	}

	return v1.Tick{
		Symbol:      w.symbol,
		Price:       w.price,
		Volume:      w.volume24h,
		TradeVolume: tradeVolume,
		Change:      change,
		ChangePrice: w.price - w.dayOpen,
		ChangeRate:  (w.price - w.dayOpen) / w.dayOpen * 100,
		Timestamp:   now,
	}
}

func main() {
	var (
		brokers   = flag.String("brokers", "localhost:9092", "Kafka broker addresses (comma-separated)")
		topic     = flag.String("topic", "ticks", "Kafka topic name")
		symbols   = flag.String("symbols", "KRW-BTC,KRW-ETH,KRW-XRP", "Symbols to generate (comma-separated)")
		delay     = flag.Duration("delay", 100*time.Millisecond, "Delay between ticks")
		count     = flag.Int("count", 1000, "Number of ticks to send (0 = run forever)")
		basePrice = flag.Float64("base-price", 93000000, "Starting price for the first symbol")
		spread    = flag.Float64("spread", 0.002, "Per-tick max relative price move")
	)
	flag.Parse()

	rand.Seed(time.Now().UnixNano())

	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(*brokers, ",")...),
		Topic:        *topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	defer writer.Close()

	symbolList := strings.Split(*symbols, ",")
	walkers := make([]*walker, len(symbolList))
	for i, symbol := range symbolList {
		// Spread starting prices over an order of magnitude per symbol so
		// the generated book does not look uniform.
		price := *basePrice / float64(uint64(1)<<i)
		walkers[i] = &walker{symbol: strings.TrimSpace(symbol), price: price, dayOpen: price}
	}

	log.Printf("Sending ticks to Kafka broker: %s, topic: %s, symbols: %v", *brokers, *topic, symbolList)

	ctx := context.Background()
	sent := 0
	for *count == 0 || sent < *count {
		w := walkers[rand.Intn(len(walkers))]
		tick := w.step(*spread, time.Now().UTC())

		payload, err := json.Marshal(tick)
		if err != nil {
			log.Printf("Failed to marshal tick: %v", err)
			continue
		}

		// Keying by symbol keeps per-instrument ordering within a partition.
		msg := kafka.Message{
			Key:   []byte(tick.Symbol),
			Value: payload,
			Time:  tick.Timestamp,
		}
		if err := writer.WriteMessages(ctx, msg); err != nil {
			log.Printf("Failed to send tick %d (%s): %v", sent+1, tick.Symbol, err)
			continue
		}

		sent++
		if sent%100 == 0 {
			log.Printf("Sent %d ticks, last: %s @ %.1f", sent, tick.Symbol, tick.Price)
		}

		time.Sleep(*delay)
	}

	log.Printf("Successfully sent %d ticks", sent)
}
