// Package mqtt provides MQTT client connectivity for lambdawp.
//
// MQTT carries everything the daemon exposes to the home automation host:
// retained device state, Home Assistant discovery configs for the sensor and
// climate platforms, callable services and per-entry commands such as reload.
//
//	lambdawp ↔ MQTT Broker ↔ Home Assistant / other consumers
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllServiceCalls(), 1,
//	    func(topic string, payload []byte) error {
//	        service, _ := mqtt.ParseServiceCall(topic)
//	        return handle(service, payload)
//	    })
package mqtt
