package config

import (
	"bufio"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"

	"echod/lib/logger"
	"echod/lib/utils"
)

// DefaultConfPath is the config file used when the CONFIG environment variable is empty
const DefaultConfPath = "echo.conf"

// Properties holds global config properties
var Properties *ServerProperties

// ServerProperties defines global config properties
type ServerProperties struct {
	Bind        string `cfg:"bind"`
	Port        int    `cfg:"port"`
	MaxConnect  int    `cfg:"maxconnect"`
	Timeout     int    `cfg:"timeout"`      // per connection deadline, seconds, 0 for none
	GracePeriod int    `cfg:"grace-period"` // shutdown drain limit, seconds
	Dispatch    string `cfg:"dispatch"`     // serial, concurrent or pool
	PoolSize    int    `cfg:"pool-size"`
	NonBlock    bool   `cfg:"nonblock"`
	EventLoop   bool   `cfg:"event-loop"`
	BufferSize  int    `cfg:"buffer-size"`
	FixedReply  string `cfg:"fixed-reply"` // empty means echo the request back
	Stream      bool   `cfg:"stream"`      // keep echoing until the client hangs up
	RunID       string `cfg:"runid"`
}

func defaultProperties() *ServerProperties {
	return &ServerProperties{
		Bind:        "0.0.0.0",
		Port:        7878,
		MaxConnect:  0,
		GracePeriod: 10,
		Dispatch:    "concurrent",
		BufferSize:  512,
		RunID:       utils.RandString(40),
	}
}

func init() {
	// default config
	Properties = defaultProperties()
}

func parse(src io.Reader) *ServerProperties {
	config := defaultProperties()

	// read config file
	rawMap := make(map[string]string)
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 0 && line[0] == '#' {
			continue
		}
		pivot := strings.IndexAny(line, " ")
		if pivot > 0 && pivot < len(line)-1 { // separator found
			key := line[0:pivot]
			value := strings.Trim(line[pivot+1:], " ")
			rawMap[strings.ToLower(key)] = value
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Fatal(err)
	}

	// parse format
	t := reflect.TypeOf(config)
	v := reflect.ValueOf(config)
	n := t.Elem().NumField()
	for i := 0; i < n; i++ {
		field := t.Elem().Field(i)
		fieldVal := v.Elem().Field(i)
		key, ok := field.Tag.Lookup("cfg")
		if !ok {
			key = field.Name
		}
		value, ok := rawMap[strings.ToLower(key)]
		if ok {
			// fill config
			switch field.Type.Kind() {
			case reflect.String:
				fieldVal.SetString(value)
			case reflect.Int:
				intValue, err := strconv.ParseInt(value, 10, 64)
				if err == nil {
					fieldVal.SetInt(intValue)
				}
			case reflect.Bool:
				fieldVal.SetBool(toBool(value))
			case reflect.Slice:
				if field.Type.Elem().Kind() == reflect.String {
					slice := strings.Split(value, ",")
					fieldVal.Set(reflect.ValueOf(slice))
				}
			}
		}
	}
	return config
}

// SetupConfig reads the config file and stores properties into Properties
func SetupConfig(configFilename string) {
	file, err := os.Open(configFilename)
	if err != nil {
		panic(err)
	}
	defer file.Close()
	Properties = parse(file)
}

func toBool(s string) bool {
	ls := strings.ToLower(s)
	switch ls {
	case "true", "yes", "t", "y":
		return true
	default:
		return false
	}
}
