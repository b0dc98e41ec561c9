// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Telemetry sinks are built this way:
//
//	reg := factory.NewRegistry[telemetry.Sink]()
//	reg.Register("jsonl", func(conf map[string]any) (telemetry.Sink, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return store.NewJSONLStore(c.Path, 100, 0, 0)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": "records.jsonl"}})
package factory
