package browser

import (
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const bindingPrefix = "__minerctl_"

// BindingName is the name of the raw host binding backing the bridge name.
func BindingName(name string) string {
	return bindingPrefix + name
}

// BridgeScript installs window[name] as a variadic wrapper that packs its
// arguments into one JSON array and hands them to the raw host binding.
// Drivers evaluate it in the current document and register it for new ones.
func BridgeScript(name string) string {
	fnName, _ := jsonAPI.MarshalToString(name)
	binding, _ := jsonAPI.MarshalToString(BindingName(name))
	return fmt.Sprintf(`(() => {
  window[%s] = (...args) => {
    const binding = window[%s];
    if (typeof binding !== 'function') {
      return;
    }
    binding(JSON.stringify(args, (k, v) => v === undefined ? null : v));
  };
})();`, fnName, binding)
}

// DecodePayload turns a bridge payload back into positional arguments.
func DecodePayload(payload string) ([]json.RawMessage, error) {
	if payload == "" {
		return nil, nil
	}
	var args []json.RawMessage
	if err := jsonAPI.UnmarshalFromString(payload, &args); err != nil {
		return nil, fmt.Errorf("invalid bridge payload: %w", err)
	}
	return args, nil
}
