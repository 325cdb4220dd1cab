package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "host":
		return hostTemplate, nil
	case "peer":
		return peerTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const hostTemplate = `name = "tensorctl"
model_path = "model_params.bin"
input_path = "input_spectrogram.bin"
input_tensor_id = 99
listen_requests = true
resume = false
request_poll = "1s"
status_addr = ":9400"
cors_origins = ["http://localhost:3000"]
# status_token = "change-me"

[link]
interface = "eth0"
src_mac = "9C:EB:E8:AE:7E:F5"
dst_mac = "02:AA:BB:CC:DD:EE"
data_ethertype = 0x88B5
request_ethertype = 0x88B6
ack_ethertype = 0x88B7
frame_delay = "5ms"

[session]
fragment_size = 1400
ack_timeout = "1s"
max_attempts = 0

[session.backoff]
initial_delay = "0s"
multiplier = 2.0
max_delay = "500ms"
jitter = false

[journal]
backend = "memory"
redis_addr = "localhost:6379"
redis_db = 0
prefix = "tensorlink:"
`

const peerTemplate = `name = "tensorpeer"
output_dir = "received"
request_on_start = false

[link]
interface = "eth0"
src_mac = "02:AA:BB:CC:DD:EE"
dst_mac = "9C:EB:E8:AE:7E:F5"
frame_delay = "0s"
`
