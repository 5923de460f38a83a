// Package factory is a generic registry that turns configuration entries into
// running modules. An entry names a module type and carries its raw settings;
// the registered factory decodes those settings into a typed struct.
//
//	reg := factory.NewRegistry[metrics.MetricsSink]()
//	_ = reg.Register("prometheus", func(conf map[string]any) (metrics.MetricsSink, error) {
//	    var c PromConfig
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return NewPromSink(c)
//	})
//	sink, err := reg.Create(factory.ModuleConfig{Type: "prometheus"})
package factory
