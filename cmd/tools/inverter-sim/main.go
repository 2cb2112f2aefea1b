package main

// Modbus TCP slave answering the bridge's block reads with plausible H1
// telemetry. Accepts register writes, so force-mode commands round-trip.

import (
	"encoding/binary"
	"log"
	"os"
	"time"

	"github.com/tbrandon/mbserver"

	"github.com/vkorhonen/h1bridge/internal/codec"
)

func main() {
	addr := os.Getenv("MB_LISTEN_ADDR")
	if addr == "" {
		addr = ":1502"
	}

	srv := mbserver.NewServer()
	seed(srv)

	if err := srv.ListenTCP(addr); err != nil {
		log.Fatalf("ListenTCP: %v", err)
	}
	defer srv.Close()
	log.Printf("H1 simulator listening on %s", addr)
	// Wait forever
	for {
		time.Sleep(1 * time.Second)
	}
}

func seed(srv *mbserver.Server) {
	values := map[string]float64{
		"grid_voltage":          231.2,
		"grid_current":          4.31,
		"grid_power":            -995,
		"grid_frequency":        50.02,
		"load_power":            622,
		"inverter_power":        1617,
		"total_grid_import":     1234.56,
		"battery_voltage":       52.43,
		"battery_current":       -12.5,
		"battery_power":         -655,
		"battery_soc":           81,
		"battery_temperature":   24.5,
		"inverter_temperature":  38.1,
		"total_battery_charge":  876.54,
		"running_state":         1, // Charging
		"force_mode":            float64(codec.ForceModeStop),
		"charge_power_limit":    2000,
		"discharge_power_limit": 2500,
	}

	for _, block := range codec.DefaultBlocks() {
		raw, err := codec.EncodeBlock(values, block)
		if err != nil {
			log.Fatalf("seed %s: %v", block.Name, err)
		}
		for i := 0; i < int(block.Count); i++ {
			srv.HoldingRegisters[int(block.Start)+i] = binary.BigEndian.Uint16(raw[i*2:])
		}
	}
}
