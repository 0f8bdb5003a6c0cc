package scaffold

import (
	"strings"

	"github.com/lithammer/dedent"

	"github.com/mpataki/foundry/internal/models"
)

// Placeholders replaced by the project name when a template is rendered.
const (
	placeholderModule   = "mypackage"
	placeholderDist     = "my-package"
	placeholderJavaPkg  = "com.example"
	placeholderJavaPath = "com/example"
)

func body(s string) string {
	return strings.TrimPrefix(dedent.Dedent(s), "\n")
}

func builtinTemplates() []*Template {
	return []*Template{fastAPITemplate(), springBootTemplate(), pythonPackageTemplate()}
}

func fastAPITemplate() *Template {
	return &Template{
		ID:          "fastapi",
		Name:        "FastAPI REST API",
		Description: "FastAPI REST API with SQLAlchemy models, Pydantic schemas, and pytest",
		Language:    models.LanguagePython,
		Files: map[string]string{
			"src/__init__.py": "",
			"src/main.py": body(`
				from fastapi import FastAPI

				from src.config import settings

				app = FastAPI(title=settings.app_name)


				@app.get("/health")
				def health():
				    return {"status": "ok"}
			`),
			"src/config.py": body(`
				import os


				class Settings:
				    app_name = os.getenv("APP_NAME", "mypackage")
				    database_url = os.getenv("DATABASE_URL", "sqlite:///./app.db")


				settings = Settings()
			`),
			"src/database.py": body(`
				from sqlalchemy import create_engine
				from sqlalchemy.orm import declarative_base, sessionmaker

				from src.config import settings

				engine = create_engine(settings.database_url, connect_args={"check_same_thread": False})
				SessionLocal = sessionmaker(autocommit=False, autoflush=False, bind=engine)
				Base = declarative_base()
			`),
			"src/models.py":  "# SQLAlchemy models\n",
			"src/schemas.py": "# Pydantic schemas\n",
			"src/crud.py":    "# CRUD operations\n",
			"tests/__init__.py": "",
			"tests/conftest.py": body(`
				import pytest
				from fastapi.testclient import TestClient

				from src.main import app


				@pytest.fixture
				def client():
				    return TestClient(app)
			`),
			"tests/test_main.py": body(`
				def test_health(client):
				    response = client.get("/health")
				    assert response.status_code == 200
			`),
			"requirements.txt": body(`
				fastapi==0.104.1
				uvicorn==0.24.0
				sqlalchemy==2.0.23
				pydantic==2.5.0
				python-dotenv==1.0.0
				pytest==7.4.3
				pytest-asyncio==0.21.1
				httpx==0.25.1
			`),
			"Dockerfile": body(`
				FROM python:3.11-slim
				WORKDIR /app
				COPY requirements.txt .
				RUN pip install --no-cache-dir -r requirements.txt
				COPY . .
				CMD ["uvicorn", "src.main:app", "--host", "0.0.0.0", "--port", "8000"]
			`),
			".github/workflows/ci.yml": body(`
				name: CI
				on: [push, pull_request]
				jobs:
				  test:
				    runs-on: ubuntu-latest
				    steps:
				      - uses: actions/checkout@v4
				      - uses: actions/setup-python@v5
				        with:
				          python-version: "3.11"
				      - run: pip install -r requirements.txt
				      - run: pytest
			`),
			".gitignore": body(`
				__pycache__/
				*.py[cod]
				.venv/
				venv/
				.env
				.DS_Store
			`),
			"README.md": body(`
				# mypackage

				FastAPI application.

				    pip install -r requirements.txt
				    uvicorn src.main:app --reload
				    pytest
			`),
		},
	}
}

func springBootTemplate() *Template {
	return &Template{
		ID:          "spring_boot",
		Name:        "Spring Boot REST API",
		Description: "Spring Boot REST API with JPA and basic CRUD operations",
		Language:    models.LanguageJava,
		Files: map[string]string{
			"pom.xml": body(`
				<?xml version="1.0" encoding="UTF-8"?>
				<project xmlns="http://maven.apache.org/POM/4.0.0"
				         xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
				         xsi:schemaLocation="http://maven.apache.org/POM/4.0.0 http://maven.apache.org/xsd/maven-4.0.0.xsd">
				    <modelVersion>4.0.0</modelVersion>
				    <parent>
				        <groupId>org.springframework.boot</groupId>
				        <artifactId>spring-boot-starter-parent</artifactId>
				        <version>3.1.5</version>
				        <relativePath/>
				    </parent>
				    <groupId>com.example</groupId>
				    <artifactId>my-package</artifactId>
				    <version>1.0.0</version>
				    <dependencies>
				        <dependency>
				            <groupId>org.springframework.boot</groupId>
				            <artifactId>spring-boot-starter-web</artifactId>
				        </dependency>
				        <dependency>
				            <groupId>org.springframework.boot</groupId>
				            <artifactId>spring-boot-starter-data-jpa</artifactId>
				        </dependency>
				        <dependency>
				            <groupId>com.h2database</groupId>
				            <artifactId>h2</artifactId>
				            <scope>runtime</scope>
				        </dependency>
				        <dependency>
				            <groupId>org.springframework.boot</groupId>
				            <artifactId>spring-boot-starter-test</artifactId>
				            <scope>test</scope>
				        </dependency>
				    </dependencies>
				    <build>
				        <plugins>
				            <plugin>
				                <groupId>org.springframework.boot</groupId>
				                <artifactId>spring-boot-maven-plugin</artifactId>
				            </plugin>
				        </plugins>
				    </build>
				</project>
			`),
			"src/main/java/com/example/Application.java": body(`
				package com.example;

				import org.springframework.boot.SpringApplication;
				import org.springframework.boot.autoconfigure.SpringBootApplication;

				@SpringBootApplication
				public class Application {
				    public static void main(String[] args) {
				        SpringApplication.run(Application.class, args);
				    }
				}
			`),
			"src/main/java/com/example/controller/HealthController.java": body(`
				package com.example.controller;

				import java.util.Map;

				import org.springframework.web.bind.annotation.GetMapping;
				import org.springframework.web.bind.annotation.RestController;

				@RestController
				public class HealthController {
				    @GetMapping("/health")
				    public Map<String, String> health() {
				        return Map.of("status", "ok");
				    }
				}
			`),
			"src/main/resources/application.yml": body(`
				spring:
				  application:
				    name: my-package
				  datasource:
				    url: jdbc:h2:mem:appdb
			`),
			"src/test/java/com/example/ApplicationTests.java": body(`
				package com.example;

				import org.junit.jupiter.api.Test;
				import org.springframework.boot.test.context.SpringBootTest;

				@SpringBootTest
				class ApplicationTests {
				    @Test
				    void contextLoads() {
				    }
				}
			`),
			"Dockerfile": body(`
				FROM maven:3.9.5-eclipse-temurin-21 AS builder
				WORKDIR /app
				COPY . .
				RUN mvn clean package -DskipTests
				FROM eclipse-temurin:21-jre
				COPY --from=builder /app/target/*.jar app.jar
				ENTRYPOINT ["java", "-jar", "app.jar"]
			`),
			".gitignore": body(`
				target/
				*.class
				*.jar
				.idea/
				*.iml
			`),
			"README.md": body(`
				# my-package

				Spring Boot service.

				    mvn clean package
				    java -jar target/my-package-1.0.0.jar
			`),
		},
	}
}

func pythonPackageTemplate() *Template {
	return &Template{
		ID:          "python_package",
		Name:        "Python Package",
		Description: "Generic Python package with setup.py, pytest, and documentation",
		Language:    models.LanguagePython,
		Files: map[string]string{
			"src/__init__.py": "",
			"src/main.py": body(`
				from src.utils import greet


				def main():
				    print(greet("mypackage"))


				if __name__ == "__main__":
				    main()
			`),
			"src/utils.py": body(`
				def greet(name):
				    return f"hello, {name}"
			`),
			"tests/__init__.py": "",
			"tests/conftest.py": "",
			"tests/test_main.py": body(`
				from src.utils import greet


				def test_greet():
				    assert greet("x") == "hello, x"
			`),
			"docs/index.md": "# mypackage\n",
			"setup.py": body(`
				from setuptools import find_packages, setup

				setup(
				    name="my-package",
				    version="0.1.0",
				    packages=find_packages(),
				    python_requires=">=3.9",
				)
			`),
			"pyproject.toml": body(`
				[build-system]
				requires = ["setuptools>=65", "wheel"]
				build-backend = "setuptools.build_meta"

				[project]
				name = "my-package"
				version = "0.1.0"
				requires-python = ">=3.9"
			`),
			"requirements.txt": body(`
				pytest>=7.0
				black>=23.0
				flake8>=6.0
			`),
			".gitignore": body(`
				__pycache__/
				*.py[cod]
				*.egg-info/
				dist/
				build/
			`),
			"README.md": "# mypackage\n",
		},
	}
}
