package app

import (
	"errors"
	"flag"
)

const defaultLimit = 20

type Config struct {
	DBPath  string
	Limit   int
	FrameID string
	State   string
	Verbose bool
}

func NewConfig() *Config {
	return &Config{
		Limit: defaultLimit,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	flag.StringVar(&c.DBPath, "db", "", "Path to the journal database")
	flag.IntVar(&c.Limit, "n", defaultLimit, "Number of most recent runs to list")
	flag.StringVar(&c.FrameID, "frame", "", "Only list runs of this frame ID")
	flag.StringVar(&c.State, "state", "", "Only list runs that ended in this state")
	flag.BoolVar(&c.Verbose, "v", false, "Show site, altitude, errors and solution keywords")
	flag.Parse()

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.Limit <= 0 {
		err = errors.New("limit must be positive")
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}
	return c, nil
}
