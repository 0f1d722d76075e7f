package main

import (
	"context"
	"delivery-coordination-service/internal/adapters/realtime"
	"delivery-coordination-service/internal/adapters/trackingapi"
	"delivery-coordination-service/internal/config"
	"delivery-coordination-service/internal/tracking"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

// tracker follows one order from the customer's side and prints every state
// change plus the "updated ... ago" label.
func main() {
	orderID := flag.String("order", "", "order ID to track (required)")
	routeID := flag.String("route", "", "route ID, when already known")
	pollOnly := flag.Bool("poll-only", false, "skip the live channel and poll the snapshot endpoint")
	flag.Parse()

	_ = godotenv.Load()

	if strings.TrimSpace(*orderID) == "" {
		flag.Usage()
		os.Exit(2)
	}

	baseURL := strings.TrimRight(config.Get("TRACKING_BASE_URL", "http://localhost:8080"), "/")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := tracking.Deps{Snapshots: trackingapi.NewClient(baseURL)}
	var opts []tracking.Option
	if *pollOnly {
		opts = append(opts, tracking.WithLiveDisabled())
	} else {
		deps.Feed = realtime.NewWebSocketFeed(websocketURL(baseURL) + "/ws/changes")
	}

	session := tracking.Open(ctx, *orderID, *routeID, deps, tracking.Callbacks{OnChange: printState}, opts...)
	defer session.Close()

	labels := tracking.StartLabelTicker(nil,
		func() *time.Time { return session.State().LastUpdate },
		func(label string) {
			if label != "" {
				log.Printf("order=%s updated=%q", *orderID, label)
			}
		},
	)
	defer labels.Stop()

	<-ctx.Done()
}

func printState(st tracking.State) {
	line := []string{
		"order=" + st.OrderID,
		"phase=" + string(st.Phase),
		"status=" + string(st.OrderStatus),
	}
	if st.RouteStop != nil {
		line = append(line, "stop="+st.RouteStop.StopID, "stop_status="+string(st.RouteStop.Status))
	}
	if st.Driver != nil {
		line = append(line, "driver="+st.Driver.Name)
	}
	if st.ETA != nil {
		line = append(line, "eta="+st.ETA.Earliest.Local().Format("3:04 PM")+"-"+st.ETA.Latest.Local().Format("3:04 PM"))
	}
	if tracking.ShouldShowLiveTracking(st.OrderStatus, st.DriverLocation) {
		line = append(line, "driver_at="+formatLocation(st.DriverLocation.Latitude, st.DriverLocation.Longitude))
	}
	if st.ConnectionError != "" {
		line = append(line, "notice="+`"`+st.ConnectionError+`"`)
	}
	log.Println(strings.Join(line, " "))
}

func formatLocation(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', 5, 64) + "," + strconv.FormatFloat(lng, 'f', 5, 64)
}

func websocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	}
	return httpURL
}
