package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/mats19/pcb-bridge/bridge"
	"github.com/mats19/pcb-bridge/machine"
	"github.com/mats19/pcb-bridge/machine/grbl"
	"github.com/mats19/pcb-bridge/machine/openbuilds"
	"github.com/mats19/pcb-bridge/spjs"
	"github.com/mats19/pcb-bridge/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func openDevice(kind, port string, baud int, spjsURL, obURL string, poll time.Duration) (machine.Channel, error) {
	switch kind {
	case "serial":
		return grbl.OpenSerial(port, baud, poll)
	case "spjs":
		return grbl.NewSPJSAdapter(spjs.NewSPJS(spjsURL), port, baud), nil
	case "openbuilds":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return openbuilds.Dial(ctx, obURL)
	case "none", "":
		return nil, nil
	}
	log.Fatalf("unknown device type '%s' (want serial, spjs, openbuilds or none)", kind)
	return nil, nil
}

func main() {
	log.SetFlags(log.Lshortfile)

	// Missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	addr := flag.String("addr", getEnv("PCBPROBE_ADDR", ":9091"), "Address to bind the HTTP server to.")
	device := flag.String("device", getEnv("PCBPROBE_DEVICE", "serial"), "Device type: serial, spjs, openbuilds or none.")
	port := flag.String("port", getEnv("PCBPROBE_PORT", "/dev/ttyUSB0"), "Serial port path (or name if using SPJS).")
	baud := flag.Int("baud", getEnvAsInt("PCBPROBE_BAUD", 115200), "Serial baud rate.")
	poll := flag.Duration("poll", getEnvAsDuration("PCBPROBE_POLL", 250*time.Millisecond), "Status poll interval for serial devices (0 disables).")
	spjsURL := flag.String("spjs", getEnv("PCBPROBE_SPJS", "ws://cnc-bridge:8989/ws"), "Websocket URL of the SPJS server to use.")
	obURL := flag.String("openbuilds", getEnv("PCBPROBE_OPENBUILDS", "http://127.0.0.1:3000"), "URL of the OpenBuilds CONTROL server.")
	backendURL := flag.String("backend", getEnv("PCBPROBE_BACKEND", ""), "Base URL of a remote height map service, e.g. "+bridge.DefaultURL+". Empty uses the local database.")
	dbPath := flag.String("db", getEnv("PCBPROBE_DB", "./heightmaps.db"), "SQLite database for the local height map store.")
	profileName := flag.String("profile", getEnv("PCBPROBE_PROFILE", ""), "YAML profile with probe and grid defaults.")
	flag.Parse()

	profile, err := loadProfile(*profileName)
	if err != nil {
		log.Fatal(err)
	}

	var backend bridge.Backend
	local := *backendURL == ""
	if local {
		st, err := store.Open(*dbPath)
		if err != nil {
			log.Fatal(err)
		}
		defer st.Close()
		backend = st
	} else {
		backend = bridge.NewClient(*backendURL, nil)
	}

	ch, err := openDevice(*device, *port, *baud, *spjsURL, *obURL, *poll)
	if err != nil {
		log.Fatal(err)
	}
	var m *machine.Machine
	if ch != nil {
		if c, ok := ch.(io.Closer); ok {
			defer c.Close()
		}
		m = machine.NewMachine(ch, backend)
	} else {
		log.Println("no device configured, probing disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	api := newAPI(apiConfig{
		Machine:      m,
		Device:       ch,
		Backend:      backend,
		ServeBackend: local,
		Profile:      profile,
		Registry:     reg,
	})

	log.Printf("listening on %s", *addr)
	err = http.ListenAndServe(*addr, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		log.Printf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
		api.ServeHTTP(w, req)
	}))
	if err != nil {
		log.Fatal(err)
	}
}
