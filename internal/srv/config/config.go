package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const paramFilename = "param.yaml"

type ServerConfig struct {
	ConfigDir      string
	DebugMode      bool
	SimulationMode bool

	*ServerParam
}

func NewServerConfig(configDir string, debugMode bool, simulationMode bool) (*ServerConfig, error) {
	serverConfig := &ServerConfig{
		ConfigDir:      configDir,
		DebugMode:      debugMode,
		SimulationMode: simulationMode,
		ServerParam:    &ServerParam{},
	}

	// Check Configuration folder
	_, err := os.Stat(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Printf("Creation of config folder: %s", configDir)
			err = os.MkdirAll(configDir, 0770)
			if err != nil {
				return nil, fmt.Errorf("unable to create config folder: %w", err)
			}
		} else {
			return nil, fmt.Errorf("unable to access config folder %s: %w", configDir, err)
		}
	}

	// Defaults first, the param file only overrides what it defines
	err = yaml.Unmarshal(ParamDefaultFile, serverConfig.ServerParam)
	if err != nil {
		return nil, fmt.Errorf("unable to interpret default param file: %w", err)
	}

	rawConfig, err := os.ReadFile(serverConfig.GetCompleteParamFilename())
	if err == nil {
		err = yaml.Unmarshal(rawConfig, serverConfig.ServerParam)
		if err != nil {
			return nil, fmt.Errorf("unable to interpret param file: %w", err)
		}
	} else if os.IsNotExist(err) {
		logrus.Infof("Create default param file")
		err = os.WriteFile(serverConfig.GetCompleteParamFilename(), ParamDefaultFile, 0660)
		if err != nil {
			return nil, fmt.Errorf("unable to save param file: %w", err)
		}
	} else {
		return nil, fmt.Errorf("unable to read param file: %w", err)
	}

	if err = serverConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid param file %s: %w", serverConfig.GetCompleteParamFilename(), err)
	}

	return serverConfig, nil
}

func (sc *ServerConfig) GetCompleteParamFilename() string {
	return filepath.Join(sc.ConfigDir, paramFilename)
}
