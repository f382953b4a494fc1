package node

// dispatchConfig implements the configuration port (common port 2,
// spec §4.3). data[0] is {cmd:6, is-port:1, is-write:1}. If is-port,
// data[1] selects a port and cmd indexes that port's full config table —
// wire indices 0..3 are the shared portCommonConfigs table, 4..7 are
// reserved and answer NoConf, and indices 8+ are the port's own device
// Configs (local index = cmd-8). Otherwise cmd indexes the node's
// GlobalConfigs table directly.
func dispatchConfig(n *Node, req []byte, _ *Port) Result {
	if len(req) < 1 {
		return fail(IncorrectLength)
	}
	sel := req[0]
	cmd := sel & 0x3F
	isPort := sel&0x40 != 0
	isWrite := sel&0x80 != 0

	var target *Port
	var cfg *Config
	var bodyOffset int

	if isPort {
		if len(req) < 2 {
			return fail(IncorrectLength)
		}
		target = resolvePort(n, req[1])
		if target == nil {
			return fail(NoPort)
		}
		bodyOffset = 2
		const deviceConfigBase = 8
		switch {
		case cmd < uint8(len(portCommonConfigs)):
			cfg = &portCommonConfigs[cmd]
		case cmd < deviceConfigBase:
			return fail(NoConf)
		default:
			idx := int(cmd) - deviceConfigBase
			if idx >= len(target.Configs) {
				return fail(NoConf)
			}
			cfg = &target.Configs[idx]
		}
	} else {
		bodyOffset = 1
		if int(cmd) >= len(n.GlobalConfigs) {
			return fail(NoConf)
		}
		cfg = &n.GlobalConfigs[cmd]
	}

	if isWrite {
		if cfg.Write == nil {
			return fail(ReadOnly)
		}
		return cfg.Write(n, target, req, bodyOffset)
	}
	if cfg.Read == nil {
		return fail(WriteOnly)
	}
	return cfg.Read(n, target, req, bodyOffset)
}

// resolvePort looks a port number up the same way Dispatch does: common
// ports 0..3 directly, device ports by exact-number scan.
func resolvePort(n *Node, number uint8) *Port {
	if number < 8 {
		if number > 3 {
			return nil
		}
		return &commonPorts[number]
	}
	return n.FindDevicePort(number)
}
