package mbserver

import "github.com/paopaol/gomodbus/internal/logging"

// LeveledLogger is the logging sink a ModbusServer is built with. It is
// the same shape the client engine uses (internal/logging.Logger),
// re-exported under the server package's historical name.
type LeveledLogger = logging.Logger

func newLogger(prefix string) LeveledLogger {
	return logging.New(prefix, nil)
}
